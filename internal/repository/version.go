package repository

import (
	"sort"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/opensource-finance/sentinela/internal/domain"
)

// compareVersions orders rule versions as semantic versions. Versions that
// do not parse sort below every valid one.
func compareVersions(a, b string) int {
	return semver.Compare(canonicalVersion(a), canonicalVersion(b))
}

func canonicalVersion(v string) string {
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

func sortRules(configs []*domain.RuleConfig) {
	sort.Slice(configs, func(i, j int) bool { return configs[i].ID < configs[j].ID })
}
