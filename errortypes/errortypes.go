package errortypes

// Timeout should be used to flag that an external bid source failed to return a response
// because the auction deadline expired before a result was received.
//
// Timeouts will not be written to the app log, since they are not an actionable item for
// the host company. The auction proceeds with whatever bids arrived in time.
type Timeout struct {
	Message string
}

func (err *Timeout) Error() string {
	return err.Message
}

func (err *Timeout) Code() int {
	return TimeoutErrorCode
}

func (err *Timeout) Severity() Severity {
	return SeverityWarning
}

// BadInput should be used when returning errors which are caused by bad input.
// It should _not_ be used if the error is a server-side issue (e.g. failed to send the
// external request). Requests rejected with BadInput never reach the auction.
type BadInput struct {
	Message string
}

func (err *BadInput) Error() string {
	return err.Message
}

func (err *BadInput) Code() int {
	return BadInputErrorCode
}

func (err *BadInput) Severity() Severity {
	return SeverityFatal
}

// BadServerResponse should be used when returning errors which are caused by bad or
// unexpected behavior on a remote bid source.
//
// For example:
//
//   - The external bid source responded with a 500.
//   - The external bid source gave a malformed or unexpected response.
//
// These should not be used to log _connection_ errors (e.g. "couldn't find host"),
// which may indicate config issues for the host company.
type BadServerResponse struct {
	Message string
}

func (err *BadServerResponse) Error() string {
	return err.Message
}

func (err *BadServerResponse) Code() int {
	return BadServerResponseErrorCode
}

func (err *BadServerResponse) Severity() Severity {
	return SeverityFatal
}

// BudgetExhausted flags that a campaign lost a budget reservation race or has no
// remaining daily budget. The campaign is skipped for this auction; this is never a
// request-level failure.
type BudgetExhausted struct {
	CampaignID string
}

func (err *BudgetExhausted) Error() string {
	return "campaign " + err.CampaignID + " has exhausted its daily budget"
}

func (err *BudgetExhausted) Code() int {
	return BudgetExhaustedErrorCode
}

func (err *BudgetExhausted) Severity() Severity {
	return SeverityWarning
}

// DuplicateSuppressed flags that a candidate was dropped by the duplicate suppression
// filter. Soft and internal; never surfaced to the caller.
type DuplicateSuppressed struct {
	CampaignID string
}

func (err *DuplicateSuppressed) Error() string {
	return "campaign " + err.CampaignID + " suppressed as a likely duplicate exposure"
}

func (err *DuplicateSuppressed) Code() int {
	return DuplicateSuppressedErrorCode
}

func (err *DuplicateSuppressed) Severity() Severity {
	return SeverityWarning
}

// FrequencyCapped flags that a candidate was dropped because the user already saw the
// campaign as many times as the cap window allows.
type FrequencyCapped struct {
	CampaignID string
}

func (err *FrequencyCapped) Error() string {
	return "campaign " + err.CampaignID + " is frequency capped for this user"
}

func (err *FrequencyCapped) Code() int {
	return FrequencyCapErrorCode
}

func (err *FrequencyCapped) Severity() Severity {
	return SeverityWarning
}

// CandidateDropped wraps a panic or scoring failure on a single candidate campaign.
// Failures are isolated per candidate and must not abort the auction for the rest.
type CandidateDropped struct {
	CampaignID string
	Message    string
}

func (err *CandidateDropped) Error() string {
	return "candidate " + err.CampaignID + " dropped: " + err.Message
}

func (err *CandidateDropped) Code() int {
	return CandidateDroppedErrorCode
}

func (err *CandidateDropped) Severity() Severity {
	return SeverityWarning
}

// OverCapacity is returned when the admission gate refuses a request under saturation.
// Callers receive an explicit rejection instead of unbounded queueing.
type OverCapacity struct {
	Message string
}

func (err *OverCapacity) Error() string {
	return err.Message
}

func (err *OverCapacity) Code() int {
	return OverCapacityErrorCode
}

func (err *OverCapacity) Severity() Severity {
	return SeverityFatal
}
