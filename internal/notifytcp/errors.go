package notifytcp

import "errors"

var errNoPendingValidation = errors.New("notifytcp: no pending validation")
