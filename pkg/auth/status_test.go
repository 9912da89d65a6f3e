package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusResponse_Authenticated(t *testing.T) {
	tests := []struct {
		name string
		resp StatusResponse
		want bool
	}{
		{name: "auth disabled", resp: StatusResponse{Method: MethodStatus{Kind: MethodNone}}, want: true},
		{name: "api key", resp: StatusResponse{Method: MethodStatus{Kind: MethodAPIKey, AccessKey: "ak"}}, want: true},
		{name: "oauth2 without token", resp: StatusResponse{Method: MethodStatus{Kind: MethodOAuth2}}, want: false},
		{
			name: "valid token",
			resp: StatusResponse{Method: MethodStatus{Kind: MethodOAuth2}, Token: &TokenStatus{State: "valid"}},
			want: true,
		},
		{
			name: "near expiry with refresh token",
			resp: StatusResponse{Method: MethodStatus{Kind: MethodOAuth2}, Token: &TokenStatus{State: "near_expiry", RefreshAvailable: true}},
			want: true,
		},
		{
			name: "near expiry without refresh token",
			resp: StatusResponse{Method: MethodStatus{Kind: MethodOAuth2}, Token: &TokenStatus{State: "near_expiry"}},
			want: false,
		},
		{
			name: "expired challenge",
			resp: StatusResponse{Method: MethodStatus{Kind: MethodOAuth2}, Token: &TokenStatus{State: "challenge_expired"}},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.resp.Authenticated())
		})
	}
}
