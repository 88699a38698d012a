package identity

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind distinguishes the two messaging identifier namespaces.
type Kind string

const (
	KindUser         Kind = "user"
	KindOrganization Kind = "organization"
)

// Participant is a conversation member: a user or an organization, each
// named by its messaging identifier. It is decided once, when the credential
// is resolved, and never re-derived from the shape of the id.
type Participant struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
}

func User(id string) Participant {
	return Participant{Kind: KindUser, ID: id}
}

func Organization(id string) Participant {
	return Participant{Kind: KindOrganization, ID: id}
}

func (p Participant) IsOrganization() bool { return p.Kind == KindOrganization }

func (p Participant) String() string {
	return string(p.Kind) + ":" + p.ID
}

// ActingAs selects which of a profile's identities a request speaks for.
type ActingAs string

const (
	ActAuto         ActingAs = ""
	ActUser         ActingAs = "user"
	ActOrganization ActingAs = "organization"
)

// ParseActingAs accepts "", "user", "organization" and "org" (any case).
func ParseActingAs(s string) (ActingAs, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return ActAuto, nil
	case "user":
		return ActUser, nil
	case "organization", "org":
		return ActOrganization, nil
	}
	return ActAuto, fmt.Errorf("unknown identity %q", s)
}

// Principal is an authenticated actor.
type Principal struct {
	Participant    Participant `json:"participant"`
	AccountID      string      `json:"accountId"`
	DisplayName    string      `json:"displayName"`
	Email          string      `json:"email"`
	OrganizationID string      `json:"organizationId,omitempty"`

	// Credential is forwarded to the directory on behalf of the principal.
	Credential string `json:"-"`
}

// MessagingID is the member key used everywhere inside the messaging subsystem.
func (p *Principal) MessagingID() string {
	return p.Participant.ID
}

// Profile is the directory's view of the credential owner.
type Profile struct {
	ID             FlexibleID `json:"id"`
	Email          string     `json:"email"`
	Username       string     `json:"username"`
	MsgID          string     `json:"msg_id"`
	OrgMsgID       string     `json:"org_msg_id"`
	OrganizationID FlexibleID `json:"organization_id"`
	OrgName        string     `json:"org_name,omitempty"`
}

// NewPrincipal picks the acting identity from a profile. Without an explicit
// choice a profile with an organization identity acts as the organization.
func NewPrincipal(p *Profile, credential string, as ActingAs) (*Principal, error) {
	if p == nil {
		return nil, ErrNoMessagingIdentity
	}

	var participant Participant
	switch as {
	case ActUser:
		participant = User(p.MsgID)
	case ActOrganization:
		participant = Organization(p.OrgMsgID)
	default:
		if p.OrgMsgID != "" {
			participant = Organization(p.OrgMsgID)
		} else {
			participant = User(p.MsgID)
		}
	}
	if participant.ID == "" {
		return nil, fmt.Errorf("%w: no %s identity", ErrNoMessagingIdentity, participant.Kind)
	}

	name := p.Username
	if participant.IsOrganization() && p.OrgName != "" {
		name = p.OrgName
	}

	return &Principal{
		Participant:    participant,
		AccountID:      string(p.ID),
		DisplayName:    name,
		Email:          p.Email,
		OrganizationID: string(p.OrganizationID),
		Credential:     credential,
	}, nil
}

// FlexibleID accepts JSON strings, numbers and null.
type FlexibleID string

func (f *FlexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.New("id must be a string or a number")
	}
	*f = FlexibleID(n.String())
	return nil
}
