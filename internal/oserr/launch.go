package oserr

import "fmt"

// Launch Services status codes.
const (
	CodeAppInTrash           = -10660
	CodeUnknown              = -10810
	CodeNotAnApplication     = -10811
	CodeDataUnavailable      = -10813
	CodeApplicationNotFound  = -10814
	CodeDataErr              = -10817
	CodeLaunchInProgress     = -10818
	CodeServerCommunication  = -10822
	CodeCannotSetInfo        = -10823
	CodeIncompatibleVersion  = -10825
	CodeNoLaunchPermission   = -10826
	CodeNoExecutable         = -10827
	CodeNoClassicEnvironment = -10828
	CodeMultipleSessions     = -10829
)

const fallbackDescription = "OS error"

var launchErrors = map[int]string{
	CodeAppInTrash:           "The application cannot be run because it is inside a Trash folder.",
	CodeUnknown:              "An unknown error has occurred.",
	CodeNotAnApplication:     "The item to be registered is not an application.",
	CodeDataUnavailable:      "Data of the desired type is not available (for example, there is no kind string).",
	CodeApplicationNotFound:  "No application in the Launch Services database matches the input criteria.",
	CodeDataErr:              "Data is structured improperly (for example, an item's information property list is malformed).",
	CodeLaunchInProgress:     "A launch of the application is already in progress.",
	CodeServerCommunication:  "There is a problem communicating with the server process that maintains the Launch Services database.",
	CodeCannotSetInfo:        "The filename extension to be hidden cannot be hidden.",
	CodeIncompatibleVersion:  "The application to be launched cannot run on the current Mac OS version.",
	CodeNoLaunchPermission:   "The user does not have permission to launch the application (on a managed network).",
	CodeNoExecutable:         "The executable file is missing or has an unusable format.",
	CodeNoClassicEnvironment: "The Classic emulation environment was required but is not available.",
	CodeMultipleSessions:     "The application to be launched cannot run simultaneously in two different user sessions.",
}

// Description returns the table entry for code, or "OS error".
func Description(code int) string {
	if d, ok := launchErrors[code]; ok {
		return d
	}
	return fallbackDescription
}

// Known reports whether code has its own table entry.
func Known(code int) bool {
	_, ok := launchErrors[code]
	return ok
}

// KnownCodes returns every code in the table.
func KnownCodes() []int {
	out := make([]int, 0, len(launchErrors))
	for c := range launchErrors {
		out = append(out, c)
	}
	return out
}

// CantLaunchApplicationError is the only error the launch path surfaces.
type CantLaunchApplicationError struct {
	Code        int
	Description string
}

func (e *CantLaunchApplicationError) Error() string {
	return fmt.Sprintf("%s (%d)", e.Description, e.Code)
}

// Translate never fails; the caller decides whether to return the result.
func Translate(code int) *CantLaunchApplicationError {
	return &CantLaunchApplicationError{Code: code, Description: Description(code)}
}
