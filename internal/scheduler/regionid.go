package scheduler

import "strings"

// #region region-id

// RegionID derives the platform region identifier for a site. The prefix is
// stable so enter/exit callbacks can be reverse-mapped to the site.
func RegionID(prefix, siteID string) string {
	return prefix + siteID
}

// SiteIDFromRegion strips the prefix from a platform region identifier.
// ok is false for identifiers outside our namespace; the platform region
// facility is shared with other subsystems and their IDs are not ours to act on.
func SiteIDFromRegion(prefix, regionID string) (siteID string, ok bool) {
	if !strings.HasPrefix(regionID, prefix) {
		return "", false
	}
	siteID = regionID[len(prefix):]
	if siteID == "" {
		return "", false
	}
	return siteID, true
}

// #endregion region-id
