package trade

import (
	"errors"
	"reflect"
	"testing"
)

func TestDecodeIsTotal(t *testing.T) {
	for code := int16(-3); code <= 10; code++ {
		ls := DecodeListingStatus(code)
		if ls.String() == "unknown" {
			t.Fatalf("listing code %d decoded to an unnamed status", code)
		}
		rs := DecodeRequestStatus(code)
		if rs.String() == "unknown" {
			t.Fatalf("request code %d decoded to an unnamed status", code)
		}
	}
	if DecodeListingStatus(99) != ListingDeleted {
		t.Fatal("unknown listing code should decode to deleted")
	}
	if DecodeRequestStatus(-1) != RequestDeleted {
		t.Fatal("unknown request code should decode to deleted")
	}
	if DecodeListingStatus(ListingProcessing.Code()) != ListingProcessing {
		t.Fatal("known codes must round trip")
	}
}

func TestListingTransitions(t *testing.T) {
	all := []ListingStatus{ListingDeleted, ListingRequested, ListingSelected, ListingProcessing, ListingCompleted}
	allowed := map[[2]ListingStatus]bool{
		{ListingRequested, ListingSelected}:    true,
		{ListingRequested, ListingDeleted}:     true,
		{ListingSelected, ListingProcessing}:   true,
		{ListingSelected, ListingCompleted}:    true,
		{ListingSelected, ListingDeleted}:      true,
		{ListingProcessing, ListingCompleted}:  true,
		{ListingProcessing, ListingDeleted}:    true,
	}
	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]ListingStatus{from, to}]
			if got := from.CanTransition(to); got != want {
				t.Errorf("%v -> %v: got %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestNextRequestStatus(t *testing.T) {
	cases := []struct {
		in      RequestStatus
		want    RequestStatus
		wantErr bool
	}{
		{in: RequestRequested, want: RequestProcessing},
		{in: RequestProcessing, want: RequestCompleted},
		{in: RequestCompleted, want: RequestCompleted, wantErr: true},
		{in: RequestDeleted, want: RequestDeleted, wantErr: true},
	}
	for _, tc := range cases {
		got, err := NextRequestStatus(tc.in)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidTradeStatus) {
				t.Errorf("NextRequestStatus(%v): expected InvalidTradeStatus, got %v", tc.in, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("NextRequestStatus(%v) = %v, %v; want %v", tc.in, got, err, tc.want)
		}
	}
}

func TestParseBucket(t *testing.T) {
	cases := []struct {
		name         string
		mine         bool
		listing      []int16
		listingAdmin []int16
		request      []int16
	}{
		{name: "", listing: []int16{1, 2, 3, 4}, listingAdmin: []int16{1, 2, 3, 4, 0}, request: []int16{1, 2, 3}},
		{name: "all", listing: []int16{1, 2, 3, 4}, listingAdmin: []int16{1, 2, 3, 4, 0}, request: []int16{1, 2, 3}},
		{name: "request", listing: []int16{1}, listingAdmin: []int16{1}, request: []int16{1}},
		{name: "progress", listing: []int16{2, 3}, listingAdmin: []int16{2, 3}, request: []int16{2}},
		{name: "my-complete", mine: true, listing: []int16{4}, listingAdmin: []int16{4}, request: []int16{3}},
		{name: " MY-ALL ", mine: true, listing: []int16{1, 2, 3, 4}, listingAdmin: []int16{1, 2, 3, 4, 0}, request: []int16{1, 2, 3}},
	}
	for _, tc := range cases {
		b, err := ParseBucket(tc.name)
		if err != nil {
			t.Fatalf("ParseBucket(%q): %v", tc.name, err)
		}
		if b.Mine != tc.mine {
			t.Errorf("ParseBucket(%q).Mine = %v", tc.name, b.Mine)
		}
		if got := b.ListingStatuses(false); !reflect.DeepEqual(got, tc.listing) {
			t.Errorf("%q listing statuses = %v, want %v", tc.name, got, tc.listing)
		}
		if got := b.ListingStatuses(true); !reflect.DeepEqual(got, tc.listingAdmin) {
			t.Errorf("%q admin listing statuses = %v, want %v", tc.name, got, tc.listingAdmin)
		}
		if got := b.RequestStatuses(false); !reflect.DeepEqual(got, tc.request) {
			t.Errorf("%q request statuses = %v, want %v", tc.name, got, tc.request)
		}
	}

	for _, bad := range []string{"open", "my-", "mine-all", "my-my-all"} {
		if _, err := ParseBucket(bad); !errors.Is(err, ErrInvalidSearchStatus) {
			t.Errorf("ParseBucket(%q): expected InvalidSearchStatus, got %v", bad, err)
		}
	}
}

func TestKindOf(t *testing.T) {
	if KindOf(ErrListingNotFound) != KindNotFound {
		t.Fatal("expected not found kind")
	}
	if KindOf(errors.New("boom")) != KindInternal {
		t.Fatal("plain errors are internal")
	}
	wrapped := errors.Join(errors.New("ctx"), ErrUnauthorizedAccess)
	if KindOf(wrapped) != KindAuthorization {
		t.Fatal("wrapped coordinator errors keep their kind")
	}
}
