package dto

// ConnectQuery carries an optional post-handshake redirect
type ConnectQuery struct {
	RedirectAfter string `form:"redirect_after" binding:"omitempty,url"`
}

// ConnectResponse points the browser at the provider consent page
type ConnectResponse struct {
	AuthorizeURL string `json:"authorize_url"`
	State        string `json:"state"`
}

// CallbackQuery is what the provider sends back
type CallbackQuery struct {
	Code             string `form:"code"`
	State            string `form:"state" binding:"required"`
	Error            string `form:"error"`
	ErrorDescription string `form:"error_description"`
}

// ChannelStatusResponse reports the connection of one tenant
type ChannelStatusResponse struct {
	TenantID      string          `json:"tenant_id"`
	Channel       ChannelResponse `json:"channel_connection"`
	RedirectAfter string          `json:"redirect_after,omitempty"`
}
