package user

// User is one provisioned card holder. CardNumber is the primary key
// everywhere in the system: a decimal string produced by the Wiegand
// decoder. The on-disk shape in users.json mirrors this struct keyed by
// card number.
type User struct {
	CardNumber       string `json:"card_number"`
	ID               string `json:"id"`
	Name             string `json:"name"`
	RefID            string `json:"ref_id,omitempty"`
	PrivacyProtected bool   `json:"privacy_protected,omitempty"`
}

// View is the list shape the control plane returns: the user joined with
// its blocklist membership.
type View struct {
	CardNumber       string `json:"card_number"`
	ID               string `json:"id"`
	Name             string `json:"name"`
	RefID            string `json:"ref_id"`
	Blocked          bool   `json:"blocked"`
	PrivacyProtected bool   `json:"privacy_protected"`
}
