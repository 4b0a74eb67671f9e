// Package legacy imports the flat JSON files written by the first version
// of the bot (user.json, lobby.json, matches.json, referrals.json,
// memberships.json and root.json) into the store.
//
// Every file is optional. Timestamps in the files carry no zone and are read
// as UTC. Records that would break a store invariant are skipped and
// reported instead of failing the whole import.
package legacy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/roach88/ghostchat/internal/model"
	"github.com/roach88/ghostchat/internal/store"
)

// File names inside the legacy data directory.
const (
	UsersFile       = "user.json"
	LobbyFile       = "lobby.json"
	MatchesFile     = "matches.json"
	ReferralsFile   = "referrals.json"
	MembershipsFile = "memberships.json"
	RootFile        = "root.json"
)

const timeLayout = "2006-01-02 15:04:05"

// IDGenerator mints match ids.
type IDGenerator interface {
	Generate() string
}

// Result summarises an import.
type Result struct {
	Users        int      `json:"users"`
	LobbyEntries int      `json:"lobby_entries"`
	Matches      int      `json:"matches"`
	Referrals    int      `json:"referrals"`
	Memberships  int      `json:"memberships"`
	Skipped      []string `json:"skipped,omitempty"`
}

func (r *Result) skip(format string, args ...any) {
	r.Skipped = append(r.Skipped, fmt.Sprintf(format, args...))
}

type userRecord struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	Gender    string `json:"gender"`
	Prefer    string `json:"prefer"`
	Type      string `json:"type"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
}

type lobbyRecord struct {
	Gender   string `json:"gender"`
	Prefer   string `json:"prefer"`
	Type     string `json:"type"`
	MatchOrg bool   `json:"match_org"`
}

type referralRecord struct {
	Referrals      []string `json:"referrals"`
	TotalReferrals int      `json:"total_referrals"`
	VIPEarned      bool     `json:"vip_earned"`
	LastReferral   *string  `json:"last_referral"`
}

type membershipRecord struct {
	Type        string `json:"type"`
	GrantedDate string `json:"granted_date"`
	ExpiryDate  string `json:"expiry_date"`
	Reason      string `json:"reason"`
}

type rootRecord struct {
	Offset     *int64 `json:"offset"`
	TotalUsers *int64 `json:"Total Users"`
	BotStarted string `json:"Bot Started"`
}

// Import reads dir and writes everything it understands in one transaction.
// now stamps lobby entries and records without a usable timestamp.
func Import(ctx context.Context, s *store.Store, dir string, ids IDGenerator, now time.Time) (Result, error) {
	var res Result

	users, err := readOrdered[userRecord](dir, UsersFile)
	if err != nil {
		return res, err
	}
	lobby, err := readOrdered[lobbyRecord](dir, LobbyFile)
	if err != nil {
		return res, err
	}
	matches, err := readOrdered[string](dir, MatchesFile)
	if err != nil {
		return res, err
	}
	referrals, err := readOrdered[referralRecord](dir, ReferralsFile)
	if err != nil {
		return res, err
	}
	memberships, err := readOrdered[membershipRecord](dir, MembershipsFile)
	if err != nil {
		return res, err
	}
	root, err := readRoot(dir)
	if err != nil {
		return res, err
	}

	err = s.Update(ctx, func(tx *store.Tx) error {
		known := make(map[string]bool, len(users))
		for _, kv := range users {
			u, err := toUser(kv.key, kv.val, now)
			if err != nil {
				res.skip("user %s: %v", kv.key, err)
				continue
			}
			if err := tx.PutUser(ctx, u); err != nil {
				return err
			}
			known[u.ID] = true
			res.Users++
		}

		matched := make(map[string]bool)
		for _, p := range pairs(matches, &res) {
			if !known[p[0]] || !known[p[1]] {
				res.skip("match %s-%s: unknown user", p[0], p[1])
				continue
			}
			m := model.Match{ID: ids.Generate(), UserA: p[0], UserB: p[1], CreatedAt: now}
			if err := tx.InsertMatch(ctx, m); err != nil {
				return err
			}
			matched[p[0]], matched[p[1]] = true, true
			res.Matches++
		}

		for _, kv := range lobby {
			switch {
			case !known[kv.key]:
				res.skip("lobby %s: unknown user", kv.key)
				continue
			case matched[kv.key]:
				res.skip("lobby %s: already matched", kv.key)
				continue
			}
			e, err := toLobbyEntry(kv.key, kv.val, now)
			if err != nil {
				res.skip("lobby %s: %v", kv.key, err)
				continue
			}
			if _, err := tx.UpsertLobbyEntry(ctx, e); err != nil {
				return err
			}
			res.LobbyEntries++
		}

		for _, kv := range referrals {
			ref := model.Referral{
				ReferrerID: kv.key,
				Referred:   kv.val.Referrals,
				TotalCount: kv.val.TotalReferrals,
				VIPEarned:  kv.val.VIPEarned,
			}
			if ref.TotalCount < len(ref.Referred) {
				ref.TotalCount = len(ref.Referred)
			}
			if kv.val.LastReferral != nil {
				if t, err := parseTime(*kv.val.LastReferral); err == nil {
					ref.LastReferralAt = t
				}
			}
			if err := tx.PutReferral(ctx, ref); err != nil {
				return err
			}
			res.Referrals++
		}

		for _, kv := range memberships {
			if !known[kv.key] {
				res.skip("membership %s: unknown user", kv.key)
				continue
			}
			m, err := toMembership(kv.key, kv.val, now)
			if err != nil {
				res.skip("membership %s: %v", kv.key, err)
				continue
			}
			if err := tx.PutMembership(ctx, m); err != nil {
				return err
			}
			res.Memberships++
		}

		return importRoot(ctx, tx, root)
	})
	if err != nil {
		return Result{}, fmt.Errorf("import %s: %w", dir, err)
	}
	return res, nil
}

func toUser(id string, r userRecord, now time.Time) (model.User, error) {
	gender, err := model.ParseGender(r.Gender)
	if err != nil {
		return model.User{}, err
	}
	pref, err := model.ParsePreference(r.Prefer)
	if err != nil {
		return model.User{}, err
	}
	tier, err := model.ParseTier(r.Type)
	if err != nil {
		return model.User{}, err
	}
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		created = now
	}
	return model.User{
		ID:               id,
		DisplayName:      model.NormalizeName(r.FirstName, r.LastName),
		Gender:           gender,
		GenderPreference: pref,
		Email:            r.Email,
		EmailVerified:    r.Email != "",
		Tier:             tier,
		CreatedAt:        created,
		UpdatedAt:        now,
	}, nil
}

func toLobbyEntry(id string, r lobbyRecord, now time.Time) (model.LobbyEntry, error) {
	gender, err := model.ParseGender(r.Gender)
	if err != nil {
		return model.LobbyEntry{}, err
	}
	pref, err := model.ParsePreference(r.Prefer)
	if err != nil {
		return model.LobbyEntry{}, err
	}
	tier, err := model.ParseTier(r.Type)
	if err != nil {
		return model.LobbyEntry{}, err
	}
	return model.LobbyEntry{
		UserID:           id,
		Gender:           gender,
		GenderPreference: pref,
		Tier:             tier,
		OrgMatchOptIn:    r.MatchOrg,
		EnteredAt:        now,
	}, nil
}

func toMembership(id string, r membershipRecord, now time.Time) (model.Membership, error) {
	expires, err := parseTime(r.ExpiryDate)
	if err != nil {
		return model.Membership{}, fmt.Errorf("expiry_date: %w", err)
	}
	granted, err := parseTime(r.GrantedDate)
	if err != nil {
		granted = now
	}
	reason := r.Reason
	if reason == "" {
		reason = model.ReasonManual
	}
	return model.Membership{UserID: id, GrantedAt: granted, ExpiresAt: expires, Reason: reason}, nil
}

// pairs keeps the symmetric entries of a matches map, in file order, once
// each. Half pairs and self pairs are reported.
func pairs(matches []entry[string], res *Result) [][2]string {
	partner := make(map[string]string, len(matches))
	for _, kv := range matches {
		partner[kv.key] = kv.val
	}
	seen := make(map[string]bool)
	var out [][2]string
	for _, kv := range matches {
		a, b := kv.key, kv.val
		if seen[a] {
			continue
		}
		switch {
		case a == b:
			res.skip("match %s: paired with itself", a)
		case partner[b] != a:
			res.skip("match %s-%s: half pair", a, b)
		default:
			out = append(out, [2]string{a, b})
			seen[a], seen[b] = true, true
		}
	}
	return out
}

func importRoot(ctx context.Context, tx *store.Tx, r rootRecord) error {
	if r.Offset != nil && *r.Offset > 0 {
		if err := tx.SetMetaInt(ctx, store.MetaUpdateOffset, *r.Offset); err != nil {
			return err
		}
	}
	if r.TotalUsers != nil {
		if err := tx.SetMetaInt(ctx, store.MetaUserTotal, *r.TotalUsers); err != nil {
			return err
		}
	}
	if r.BotStarted != "" {
		if t, err := parseTime(r.BotStarted); err == nil {
			if err := tx.SetMeta(ctx, store.MetaBotStarted, t.Format(time.RFC3339)); err != nil {
				return err
			}
		}
	}
	return nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	return time.Parse(timeLayout, s)
}

type entry[T any] struct {
	key string
	val T
}

// readOrdered decodes a JSON object keyed by user id, keeping file order so
// the lobby queue survives the import. A missing file yields nothing.
func readOrdered[T any](dir, name string) ([]entry[T], error) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("%s: expected a JSON object", name)
	}

	var out []entry[T]
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		key, _ := tok.(string)
		var v T
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("%s: key %s: %w", name, strconv.Quote(key), err)
		}
		out = append(out, entry[T]{key: key, val: v})
	}
	return out, nil
}

func readRoot(dir string) (rootRecord, error) {
	var r rootRecord
	data, err := os.ReadFile(filepath.Join(dir, RootFile))
	if errors.Is(err, fs.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return r, fmt.Errorf("read %s: %w", RootFile, err)
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("%s: %w", RootFile, err)
	}
	return r, nil
}
