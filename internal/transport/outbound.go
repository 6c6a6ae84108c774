package transport

import "github.com/google/uuid"

// The backend has never pinned down which envelope it reads, so every
// outbound intent goes out once per known envelope.

type typedFrame struct {
	Type  string `json:"type"`
	Data  any    `json:"data,omitempty"`
	Token string `json:"token,omitempty"`
}

type eventFrame struct {
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type actionFrame struct {
	Action string `json:"action"`
	Token  string `json:"token"`
}

type tokenData struct {
	Token string `json:"token"`
}

type messageData struct {
	Message   string `json:"message"`
	Recipient string `json:"recipient,omitempty"`
	ClientID  string `json:"clientId"`
}

type typingData struct {
	Recipient string `json:"recipient,omitempty"`
}

func (c *Client) handshake() {
	token := c.cfg.Token
	if token == "" {
		return
	}
	c.Send(typedFrame{Type: "auth", Token: token})
	c.Send(eventFrame{Event: "authenticate", Data: tokenData{Token: token}})
	c.Send(actionFrame{Action: "login", Token: token})
}

// SendMessage announces a message that was already written through the HTTP API.
func (c *Client) SendMessage(body, recipient string) {
	data := messageData{Message: body, Recipient: recipient, ClientID: uuid.NewString()}
	c.Send(typedFrame{Type: "message", Data: data})
	c.Send(eventFrame{Event: "message", Payload: data})
}

func (c *Client) SendTyping(recipient string, typing bool) {
	name := "stop_typing"
	if typing {
		name = "start_typing"
	}
	data := typingData{Recipient: recipient}
	c.Send(typedFrame{Type: name, Data: data})
	c.Send(eventFrame{Event: name, Payload: data})
}
