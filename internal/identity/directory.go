package identity

import (
	"context"
	"fmt"
	"strings"
)

// UnknownName is shown for members the directory does not know.
const UnknownName = "Unknown"

// MemberProfile is the public card of a conversation member.
type MemberProfile struct {
	ID               string `json:"id"`
	Kind             Kind   `json:"kind,omitempty"`
	Name             string `json:"name"`
	ProfilePhotoPath string `json:"profilePhotoPath,omitempty"`
	Logo             string `json:"logo,omitempty"`
}

// Members indexes member cards by messaging identifier.
type Members map[string]MemberProfile

// Lookup returns the card for id, or an "Unknown" card.
func (m Members) Lookup(id string) MemberProfile {
	if p, ok := m[id]; ok {
		return p
	}
	return MemberProfile{ID: id, Name: UnknownName}
}

type profileEnvelope struct {
	Data struct {
		User Profile `json:"user"`
	} `json:"data"`
}

type userListEnvelope struct {
	Data []struct {
		MsgID            string `json:"msg_id"`
		Username         string `json:"username"`
		ProfilePhotoPath string `json:"profile_photo_path"`
	} `json:"data"`
}

type organizationListEnvelope struct {
	Data []struct {
		MsgID   string `json:"msg_id"`
		OrgName string `json:"org_name"`
		Logo    string `json:"logo"`
	} `json:"data"`
}

// Directory talks to the external user/organization directory.
type Directory struct {
	baseURL    string
	client     *RetryClient
	systemID   string
	systemName string
}

type DirectoryOption func(*Directory)

// WithSystemMember makes id always resolve to name (the platform's own inbox).
func WithSystemMember(id, name string) DirectoryOption {
	return func(d *Directory) {
		d.systemID = id
		d.systemName = name
	}
}

func NewDirectory(baseURL string, client *RetryClient, opts ...DirectoryOption) *Directory {
	d := &Directory{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Profile returns the profile of the credential owner.
func (d *Directory) Profile(ctx context.Context, credential string) (*Profile, error) {
	var env profileEnvelope
	if err := d.client.GetJSON(ctx, d.baseURL+"/users/profile", credential, &env); err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	return &env.Data.User, nil
}

// Members fetches every user and organization card in two calls.
func (d *Directory) Members(ctx context.Context, credential string) (Members, error) {
	var users userListEnvelope
	if err := d.client.GetJSON(ctx, d.baseURL+"/users/all", credential, &users); err != nil {
		return nil, fmt.Errorf("fetch users: %w", err)
	}

	var orgs organizationListEnvelope
	if err := d.client.GetJSON(ctx, d.baseURL+"/organization", credential, &orgs); err != nil {
		return nil, fmt.Errorf("fetch organizations: %w", err)
	}

	members := make(Members, len(users.Data)+len(orgs.Data)+1)
	for _, u := range users.Data {
		if u.MsgID == "" {
			continue
		}
		members[u.MsgID] = MemberProfile{
			ID:               u.MsgID,
			Kind:             KindUser,
			Name:             u.Username,
			ProfilePhotoPath: u.ProfilePhotoPath,
		}
	}
	for _, o := range orgs.Data {
		if o.MsgID == "" {
			continue
		}
		if _, taken := members[o.MsgID]; taken {
			continue
		}
		members[o.MsgID] = MemberProfile{
			ID:   o.MsgID,
			Kind: KindOrganization,
			Name: o.OrgName,
			Logo: o.Logo,
		}
	}
	if d.systemID != "" {
		card := members[d.systemID]
		card.ID = d.systemID
		card.Name = d.systemName
		members[d.systemID] = card
	}
	return members, nil
}
