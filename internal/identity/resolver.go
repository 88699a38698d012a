package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/pkg/logger"
	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/pkg/utils"
)

var (
	ErrInvalidCredential    = errors.New("invalid credential")
	ErrDirectoryUnavailable = errors.New("directory unavailable")
	ErrNoMessagingIdentity  = errors.New("profile has no messaging identity")
)

const membersCacheKey = "directory:members"

// DirectoryClient is the part of the external directory the resolver needs.
type DirectoryClient interface {
	Profile(ctx context.Context, credential string) (*Profile, error)
	Members(ctx context.Context, credential string) (Members, error)
}

type ResolverConfig struct {
	Secret     string
	ProfileTTL time.Duration
	MembersTTL time.Duration
}

// Resolver turns bearer credentials into principals. Profiles are cached per
// credential for at most ProfileTTL and never past the token's expiry.
type Resolver struct {
	cfg       ResolverConfig
	directory DirectoryClient
	cache     Cache
	now       func() time.Time
}

func NewResolver(cfg ResolverConfig, directory DirectoryClient, cache Cache) *Resolver {
	return &Resolver{
		cfg:       cfg,
		directory: directory,
		cache:     cache,
		now:       time.Now,
	}
}

// Resolve verifies credential locally, then loads the owner's profile and
// builds the principal acting as requested. A cached profile lacking the
// requested identity is evicted and fetched again. Every failure is reported as an
// error; callers translate all of them to Unauthorized.
func (r *Resolver) Resolve(ctx context.Context, credential string, as ActingAs) (*Principal, error) {
	claims, err := utils.ValidateToken(credential, r.cfg.Secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	key := profileCacheKey(credential)
	var profile Profile
	err = r.cache.Get(ctx, key, &profile)
	switch {
	case err == nil:
		principal, err := NewPrincipal(&profile, credential, as)
		if !errors.Is(err, ErrNoMessagingIdentity) {
			return principal, err
		}
		// The cached profile may predate the identity being asked for.
		if err := r.cache.Delete(ctx, key); err != nil {
			logger.Warn().Err(err).Msg("Profile cache eviction failed")
		}
	case !errors.Is(err, ErrCacheMiss):
		logger.Warn().Err(err).Msg("Profile cache read failed")
	}

	fetched, err := r.directory.Profile(ctx, credential)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}

	if ttl := r.profileTTL(claims.Expiry()); ttl > 0 {
		if err := r.cache.Set(ctx, key, fetched, ttl); err != nil {
			logger.Warn().Err(err).Msg("Profile cache write failed")
		}
	}

	return NewPrincipal(fetched, credential, as)
}

// Members returns the directory cards of every user and organization,
// fetched at most once per MembersTTL.
func (r *Resolver) Members(ctx context.Context, credential string) (Members, error) {
	var members Members
	err := r.cache.Get(ctx, membersCacheKey, &members)
	if err == nil {
		return members, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		logger.Warn().Err(err).Msg("Directory cache read failed")
	}

	members, err = r.directory.Members(ctx, credential)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	if r.cfg.MembersTTL > 0 {
		if err := r.cache.Set(ctx, membersCacheKey, members, r.cfg.MembersTTL); err != nil {
			logger.Warn().Err(err).Msg("Directory cache write failed")
		}
	}
	return members, nil
}

func (r *Resolver) profileTTL(expiry time.Time) time.Duration {
	ttl := r.cfg.ProfileTTL
	if expiry.IsZero() {
		return ttl
	}
	if left := expiry.Sub(r.now()); left < ttl {
		ttl = left
	}
	return ttl
}

func profileCacheKey(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return "profile:" + hex.EncodeToString(sum[:])
}
