// Package normalize turns adapter output into canonical postings.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/amishk599/jobharvest/internal/model"
)

// SourceID scopes a site-native id to its site.
func SourceID(site, nativeID string) string {
	return site + ":" + nativeID
}

// Normalize maps a raw posting to a Posting and fingerprints it. Display
// fields are trimmed and whitespace-collapsed but keep their case. It fails
// with a *model.NormalizationError when title, url or native id is missing.
func Normalize(raw model.RawPosting, site string) (model.Posting, error) {
	fields := model.Fields{
		Title:        clean(raw.Title),
		Company:      clean(raw.Company),
		Location:     clean(raw.Location),
		URL:          strings.TrimSpace(raw.URL),
		Compensation: clean(raw.Compensation),
		Description:  clean(raw.Description),
		RawText:      clean(raw.RawText),
		PostedAt:     raw.PostedAt,
	}
	nativeID := strings.TrimSpace(raw.NativeID)

	switch {
	case fields.Title == "":
		return model.Posting{}, &model.NormalizationError{Site: site, Field: "title"}
	case fields.URL == "":
		return model.Posting{}, &model.NormalizationError{Site: site, Field: "url"}
	case nativeID == "":
		return model.Posting{}, &model.NormalizationError{Site: site, Field: "native_id"}
	}

	return model.Posting{
		SourceID:    SourceID(site, nativeID),
		Site:        site,
		NativeID:    nativeID,
		Fingerprint: Fingerprint(fields),
		Fields:      fields,
	}, nil
}

// Fingerprint hashes the content fields in a fixed order after trimming,
// collapsing whitespace and lowercasing. URL and PostedAt are not content.
func Fingerprint(f model.Fields) string {
	h := sha256.New()
	for _, v := range []string{f.Title, f.Company, f.Location, f.Compensation, f.Description, f.RawText} {
		h.Write([]byte(strings.ToLower(clean(v))))
		// Unit separator keeps ("ab","c") and ("a","bc") apart.
		h.Write([]byte{0x1f})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
