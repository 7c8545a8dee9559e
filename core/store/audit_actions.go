package store

// Change log action names. Keep these stable: exports and retention
// tooling match on the literal strings.
const (
	ActionUserRename    = "user.rename"
	ActionUserRealName  = "user.realname"
	ActionUserEmail     = "user.email"
	ActionPasswordSet   = "user.password.set"
	ActionPasswordEmail = "user.password.email"
	ActionWelcomeEmail  = "user.welcome.email"
	ActionRightsChange  = "rights.change"
	ActionUserCreate    = "user.create"
)
