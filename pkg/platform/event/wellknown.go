package event

// Well-known event types emitted by the authentication plugins that
// sit outside this module's scope. The bus treats these as opaque
// strings like any other event type; they are declared here so that
// middleware, the schema registry, and webhook filters have a stable
// vocabulary to reference without each plugin re-declaring its own
// constants.
const (
	TypeUserCreated             = "user.created"
	TypeUserUpdated             = "user.updated"
	TypeUserDeleted             = "user.deleted"
	TypeSessionCreated          = "session.created"
	TypeSessionDestroyed        = "session.destroyed"
	TypeSignInSuccess           = "signin.success"
	TypeSignInFailed            = "signin.failed"
	TypeSignUpSuccess           = "signup.success"
	TypeEmailVerified           = "email.verified"
	TypePasswordChanged         = "password.changed"
	TypePasswordResetRequested  = "password.reset_requested"
)
