package api

import (
	"errors"
	"testing"
)

func TestBearerTokenFromString(t *testing.T) {
	cases := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{name: "valid", header: "Bearer aaa.bbb.ccc", want: "aaa.bbb.ccc"},
		{name: "surrounding spaces", header: "  Bearer aaa.bbb.ccc  ", want: "aaa.bbb.ccc"},
		{name: "empty", header: "", wantErr: errMissingAuthorization},
		{name: "spaces only", header: "   ", wantErr: errMissingAuthorization},
		{name: "missing prefix", header: "aaa.bbb.ccc", wantErr: errBadAuthorization},
		{name: "wrong scheme", header: "Basic aaa.bbb.ccc", wantErr: errBadAuthorization},
		{name: "not a jwt", header: "Bearer notajwt", wantErr: errBadAuthorization},
		{name: "too many segments", header: "Bearer a.b.c.d", wantErr: errBadAuthorization},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := bearerTokenFromString(tc.header)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err=%v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tc.want {
				t.Fatalf("token %q, want %q", got, tc.want)
			}
		})
	}
}
