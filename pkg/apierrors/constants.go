package apierrors

// Generic
const (
	MsgOK               = "ok"
	MsgCreated          = "created"
	MsgUpdated          = "updated"
	MsgDeleted          = "deleted"
	MsgInvalidRequest   = "invalidRequest"
	MsgValidationFailed = "validationFailed"
	MsgUnauthorized     = "unauthorized"
	MsgForbidden        = "forbidden"
	MsgNotFound         = "notFound"
	MsgConflict         = "conflict"
	MsgTooManyRequests  = "tooManyRequests"
	MsgInternalError    = "internalError"
	MsgAccountInactive  = "accountInactive"
)

// Accounts
const (
	MsgOTPSent             = "otpSent"
	MsgOTPVerified         = "otpVerified"
	MsgLoginSuccess        = "loginSuccess"
	MsgInvalidCredentials  = "invalidCredentials"
	MsgAwaitingApproval    = "awaitingApproval"
	MsgAccountDeclined     = "accountDeclined"
	MsgAccountBlocked      = "accountBlocked"
	MsgNotVerified         = "notVerified"
	MsgEmailTaken          = "emailTaken"
	MsgIdentifierTaken     = "identifierTaken"
	MsgRegistrationExpired = "registrationExpired"
	MsgInvalidOTP          = "invalidOTP"
	MsgTooManyAttempts     = "tooManyAttempts"
	MsgResendTooSoon       = "resendTooSoon"
	MsgPasswordResetSent   = "passwordResetSent"
	MsgPasswordReset       = "passwordReset"
	MsgPasswordChanged     = "passwordChanged"
	MsgUserApproved        = "userApproved"
	MsgUserDeclined        = "userDeclined"
	MsgUserBlocked         = "userBlocked"
	MsgUserUnblocked       = "userUnblocked"
	MsgUserNotFound        = "userNotFound"
	MsgInvalidTransition   = "invalidTransition"
	MsgUserHasDependents   = "userHasDependents"
)

// Kanban
const (
	MsgProjectNotFound  = "projectNotFound"
	MsgBoardNotFound    = "boardNotFound"
	MsgColumnNotFound   = "columnNotFound"
	MsgTaskNotFound     = "taskNotFound"
	MsgCommentNotFound  = "commentNotFound"
	MsgProjectKeyTaken  = "projectKeyTaken"
	MsgCrossBoardMove   = "crossBoardMove"
	MsgWIPLimitReached  = "wipLimitReached"
	MsgInvalidOrder     = "invalidColumnOrder"
	MsgColumnNotEmpty   = "columnNotEmpty"
	MsgTaskMoved        = "taskMoved"
	MsgColumnsReordered = "columnsReordered"
	MsgBoardArchived    = "boardArchived"
)

// Monitor
const (
	MsgStorageStats = "storageStats"
)
