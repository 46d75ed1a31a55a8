package trade

import "strings"

// ListingStatus is the persisted state of a Listing. The numeric values are
// the smallint codes stored in listings.status.
type ListingStatus int16

const (
	ListingDeleted    ListingStatus = 0
	ListingRequested  ListingStatus = 1
	ListingSelected   ListingStatus = 2
	ListingProcessing ListingStatus = 3
	ListingCompleted  ListingStatus = 4
)

var listingStatusNames = map[ListingStatus]string{
	ListingDeleted:    "deleted",
	ListingRequested:  "requested",
	ListingSelected:   "selected",
	ListingProcessing: "processing",
	ListingCompleted:  "completed",
}

// DecodeListingStatus maps a stored code to a ListingStatus. Unknown codes
// decode to ListingDeleted so a corrupt row is hidden rather than acted on.
func DecodeListingStatus(code int16) ListingStatus {
	s := ListingStatus(code)
	if _, ok := listingStatusNames[s]; !ok {
		return ListingDeleted
	}
	return s
}

// Code returns the persisted smallint.
func (s ListingStatus) Code() int16 { return int16(s) }

func (s ListingStatus) String() string {
	if name, ok := listingStatusNames[s]; ok {
		return name
	}
	return "unknown"
}

// listingTransitions is the complete forward-only table. Deleted is reachable
// from every non-terminal state.
var listingTransitions = map[ListingStatus][]ListingStatus{
	ListingRequested:  {ListingSelected, ListingDeleted},
	ListingSelected:   {ListingProcessing, ListingCompleted, ListingDeleted},
	ListingProcessing: {ListingCompleted, ListingDeleted},
}

// CanTransition reports whether from -> to is a legal listing transition.
func (s ListingStatus) CanTransition(to ListingStatus) bool {
	for _, next := range listingTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// RequestStatus is the persisted state of a Request.
type RequestStatus int16

const (
	RequestDeleted    RequestStatus = 0
	RequestRequested  RequestStatus = 1
	RequestProcessing RequestStatus = 2
	RequestCompleted  RequestStatus = 3
)

var requestStatusNames = map[RequestStatus]string{
	RequestDeleted:    "deleted",
	RequestRequested:  "requested",
	RequestProcessing: "processing",
	RequestCompleted:  "completed",
}

// DecodeRequestStatus maps a stored code to a RequestStatus; unknown codes
// decode to RequestDeleted.
func DecodeRequestStatus(code int16) RequestStatus {
	s := RequestStatus(code)
	if _, ok := requestStatusNames[s]; !ok {
		return RequestDeleted
	}
	return s
}

func (s RequestStatus) Code() int16 { return int16(s) }

func (s RequestStatus) String() string {
	if name, ok := requestStatusNames[s]; ok {
		return name
	}
	return "unknown"
}

// NextRequestStatus returns the single forward step for a request. It is
// defined for Requested and Processing only.
func NextRequestStatus(current RequestStatus) (RequestStatus, error) {
	switch current {
	case RequestRequested:
		return RequestProcessing, nil
	case RequestProcessing:
		return RequestCompleted, nil
	default:
		return current, ErrInvalidTradeStatus
	}
}

// Bucket is a named group of statuses used by search.
type Bucket struct {
	Name string
	Mine bool
	base string
}

const (
	bucketAll      = "all"
	bucketRequest  = "request"
	bucketProgress = "progress"
	bucketComplete = "complete"
	minePrefix     = "my-"
)

var knownBuckets = map[string]struct{}{
	bucketAll:      {},
	bucketRequest:  {},
	bucketProgress: {},
	bucketComplete: {},
}

// ParseBucket resolves a bucket name such as "progress" or "my-complete".
// An empty name means "all".
func ParseBucket(name string) (Bucket, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = bucketAll
	}
	base, mine := strings.CutPrefix(name, minePrefix)
	if _, ok := knownBuckets[base]; !ok {
		return Bucket{}, ErrInvalidSearchStatus
	}
	return Bucket{Name: name, Mine: mine, base: base}, nil
}

// IsAll reports whether the bucket spans every status.
func (b Bucket) IsAll() bool { return b.base == bucketAll }

// ListingStatuses returns the status codes the bucket selects. includeDeleted
// only has an effect on the "all" bucket.
func (b Bucket) ListingStatuses(includeDeleted bool) []int16 {
	switch b.base {
	case bucketRequest:
		return []int16{ListingRequested.Code()}
	case bucketProgress:
		return []int16{ListingSelected.Code(), ListingProcessing.Code()}
	case bucketComplete:
		return []int16{ListingCompleted.Code()}
	}
	out := []int16{ListingRequested.Code(), ListingSelected.Code(), ListingProcessing.Code(), ListingCompleted.Code()}
	if includeDeleted {
		out = append(out, ListingDeleted.Code())
	}
	return out
}

// RequestStatuses is the request-side equivalent of ListingStatuses.
func (b Bucket) RequestStatuses(includeDeleted bool) []int16 {
	switch b.base {
	case bucketRequest:
		return []int16{RequestRequested.Code()}
	case bucketProgress:
		return []int16{RequestProcessing.Code()}
	case bucketComplete:
		return []int16{RequestCompleted.Code()}
	}
	out := []int16{RequestRequested.Code(), RequestProcessing.Code(), RequestCompleted.Code()}
	if includeDeleted {
		out = append(out, RequestDeleted.Code())
	}
	return out
}
