package handler

const (
	// BaseLayout is the default path for layout templates.
	BaseLayout = "layouts/base"

	// RootPath is the root path the route group.
	RootPath = "/"

	// LoginPath is the login page.
	LoginPath = "/login"

	// ErrNilDepsFatalLogMsg is used if app or a mandatory dependency is nil.
	ErrNilDepsFatalLogMsg = "app or handler dependencies are nil"

	// LocalsResult is the fiber.Ctx local holding the *auth.Result of an
	// authenticated request.
	LocalsResult = "CurrentUser"

	// LocalsSession is the fiber.Ctx local holding the request's *session.Session.
	LocalsSession = "Session"

	// MsgLoginFailed is the only message shown for rejected credentials.
	MsgLoginFailed = "Login failed"

	// MsgServiceUnavailable is shown when the directory or database is down.
	MsgServiceUnavailable = "Can't contact the LDAP server or the database"
)
