// Package version holds the build version and checks GitHub for newer
// releases.
package version

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Version is the current strata release.
const Version = "0.1.0"

const releaseURL = "https://api.github.com/repos/daverage/strata/releases/latest"

// CheckForUpdates asks GitHub for the latest release tag. It returns the
// newer version string, or "" when the running build is already current
// or no release has been published yet.
func CheckForUpdates() (string, error) {
	client := &http.Client{Timeout: 5 * time.Second}

	req, err := http.NewRequest(http.MethodGet, releaseURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "strata/"+Version)

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil // no releases published yet
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("github api returned status %d", resp.StatusCode)
	}

	var release struct {
		TagName string `json:"tag_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return "", err
	}

	latest := strings.TrimPrefix(release.TagName, "v")
	if IsNewer(Version, latest) {
		return latest, nil
	}
	return "", nil
}

// IsNewer reports whether latest is a higher version than current.
// Dotted parts compare numerically from the left; missing parts count
// as zero, so 0.1 and 0.1.0 are equal.
func IsNewer(current, latest string) bool {
	if latest == "" {
		return false
	}
	cur := versionParts(current)
	lat := versionParts(latest)
	for i := 0; i < len(cur) || i < len(lat); i++ {
		var c, l int
		if i < len(cur) {
			c = cur[i]
		}
		if i < len(lat) {
			l = lat[i]
		}
		if l != c {
			return l > c
		}
	}
	return false
}

func versionParts(s string) []int {
	fields := strings.Split(s, ".")
	parts := make([]int, len(fields))
	for i, f := range fields {
		n, _ := strconv.Atoi(f)
		parts[i] = n
	}
	return parts
}
