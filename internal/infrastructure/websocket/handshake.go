package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"marketchat/internal/domain/service"
	"marketchat/pkg/errors"
)

// TokenFromRequest returns the bearer token of an upgrade request, taken from
// the Authorization header or the access_token query parameter.
func TokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return r.URL.Query().Get("access_token")
}

// AwaitAuthentication reads the first frame of a connection that was upgraded
// without a token. It must be an authenticate event arriving within timeout.
func AwaitAuthentication(ctx context.Context, conn *websocket.Conn, verifier service.TokenVerifier, timeout time.Duration) (string, error) {
	conn.SetReadDeadline(time.Now().Add(timeout))
	defer conn.SetReadDeadline(time.Time{})

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return "", errors.Unauthorized("Authentication timed out", err)
	}

	var in InboundMessage
	if err := json.Unmarshal(raw, &in); err != nil || in.Type != EventAuthenticate {
		return "", errors.Unauthorized("First event must be authenticate", err)
	}
	var data AuthenticateData
	if err := json.Unmarshal(in.Data, &data); err != nil || data.Token == "" {
		return "", errors.Unauthorized("Missing token", err)
	}

	userID, err := verifier.VerifyToken(ctx, data.Token)
	if err != nil {
		return "", errors.Unauthorized("Invalid or expired token", err)
	}
	return userID, nil
}

// RejectConnection closes conn with a policy-violation close frame.
func RejectConnection(conn *websocket.Conn, reason string) {
	deadline := time.Now().Add(writeWait)
	conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), deadline)
	conn.Close()
}
