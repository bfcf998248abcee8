package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/harborworks/fieldsync/internal/sync/biometric"
	"github.com/harborworks/fieldsync/internal/sync/store"
	"github.com/harborworks/fieldsync/pkg/slogx"
)

// Identification reasons reported to the caller. A non-match is a
// normal outcome, never an error.
const (
	ReasonNoEnrolledUsers = "no_enrolled_users"
	ReasonNoMatch         = "no_match"
	ReasonMatched         = "matched"
)

var ErrNoProbeImage = errors.New("identify: no probe image supplied")

// IdentifyService matches a probe capture against the tenant's enrolled
// templates. Matching is 1:N within the tenant, optionally narrowed to a
// group's members.
type IdentifyService struct {
	Store     store.Store
	Encoder   biometric.Encoder
	Threshold float64
}

// IdentifyResult is the endpoint's answer. MatchedUserID and Score are
// only set when Reason is "matched"; Score is the best candidate's
// cosine similarity either way a candidate existed.
type IdentifyResult struct {
	MatchedUserID *string  `json:"matchedUserId,omitempty"`
	Score         *float64 `json:"score,omitempty"`
	Reason        string   `json:"reason"`
}

// Identify encodes the probe image with the same encoder that produced
// the stored templates and returns the best candidate above threshold.
func (s *IdentifyService) Identify(ctx context.Context, tenantID string, probe []byte, groupID string) (IdentifyResult, error) {
	log := slogx.FromContext(ctx)

	if len(probe) == 0 {
		return IdentifyResult{}, ErrNoProbeImage
	}

	// 1. Derive the probe template.
	probeTpl, err := s.Encoder.Encode([][]byte{probe})
	if err != nil {
		return IdentifyResult{}, fmt.Errorf("identify: encode probe: %w", err)
	}

	// 2. Gather the candidate set: every enrolled record in the tenant,
	// narrowed to the group's members when a group was named. An unknown
	// group yields an empty candidate set, not an error, matching the
	// empty-tenant outcome.
	records, err := s.Store.EnrollmentRecords().ListEnrolled(ctx, tenantID)
	if err != nil {
		return IdentifyResult{}, fmt.Errorf("identify: list enrolled: %w", err)
	}

	if groupID != "" {
		members, err := s.groupMembers(ctx, tenantID, groupID)
		if err != nil {
			return IdentifyResult{}, err
		}
		filtered := records[:0]
		for _, rec := range records {
			if _, ok := members[rec.UserID]; ok {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}

	if len(records) == 0 {
		return IdentifyResult{Reason: ReasonNoEnrolledUsers}, nil
	}

	// 3. Score every candidate and keep the best. Records whose template
	// fails to decode (e.g. an older encoder version) are skipped rather
	// than failing the whole request.
	bestScore := -1.0
	bestUser := ""
	for _, rec := range records {
		score, err := biometric.Similarity(probeTpl, rec.Template)
		if err != nil {
			log.Warn("identify: skipping unscorable template",
				slog.String("record_id", rec.ID),
				slog.Any("error", err),
			)
			continue
		}
		if score > bestScore {
			bestScore = score
			bestUser = rec.UserID
		}
	}

	// Candidates existed but none produced a score; that is a failed
	// match, not an empty tenant.
	if bestUser == "" {
		return IdentifyResult{Reason: ReasonNoMatch}, nil
	}

	if bestScore < s.Threshold {
		return IdentifyResult{Score: &bestScore, Reason: ReasonNoMatch}, nil
	}

	log.Info("identification matched",
		slog.String("user_id", bestUser),
		slog.Float64("score", bestScore),
	)
	return IdentifyResult{MatchedUserID: &bestUser, Score: &bestScore, Reason: ReasonMatched}, nil
}

// groupMembers returns the member id set for a group; an unknown group
// returns an empty set.
func (s *IdentifyService) groupMembers(ctx context.Context, tenantID, groupID string) (map[string]struct{}, error) {
	group, err := s.Store.Groups().GetGroupByID(ctx, tenantID, groupID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return map[string]struct{}{}, nil
		}
		return nil, fmt.Errorf("identify: group lookup: %w", err)
	}
	members := make(map[string]struct{}, len(group.MemberIDs))
	for _, id := range group.MemberIDs {
		members[id] = struct{}{}
	}
	return members, nil
}
