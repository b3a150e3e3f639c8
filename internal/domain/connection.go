package domain

import "time"

// AppCredentials are the Facebook app settings entered by an administrator.
type AppCredentials struct {
	AppName      string `json:"appName"`
	AppID        string `json:"appId"`
	AppSecret    string `json:"appSecret"`
	ClientSecret string `json:"clientSecret"`
}

// Connection is the durable result of a successful page authorization.
type Connection struct {
	PageID              string    `json:"pageId"`
	PageName            string    `json:"pageName"`
	PageToken           string    `json:"pageToken"`
	UserID              string    `json:"userId"`
	LongUserToken       string    `json:"longUserToken"`
	LinkedAccountID     string    `json:"linkedAccountId,omitempty"`
	SyncSecondarySource bool      `json:"syncSecondarySource"`
	ConnectedAt         time.Time `json:"connectedAt"`
}

// Renewable reports whether the connection carries the long-lived credential
// needed to derive page tokens.
func (c *Connection) Renewable() bool {
	return c != nil && c.PageID != "" && c.LongUserToken != ""
}

// ConnectionStatus is a read-only projection for status reporting.
type ConnectionStatus struct {
	Connected bool   `json:"connected"`
	PageName  string `json:"pageName,omitempty"`
	AccountID string `json:"accountId,omitempty"`
}

// ConnectedPage is what the admin UI shows about the current connection.
type ConnectedPage struct {
	PageName     string `json:"pageName"`
	AppID        string `json:"appId"`
	ClientSecret string `json:"clientSecret"`
	PrimaryOnly  bool   `json:"primaryOnly"`
}
