package catalog

import (
	sberrors "github.com/shardbase/shardbase/internal/errors"
)

// StaleOutcome is the result of comparing a caller-presented shard
// version against the target's local view, per spec §4.7's stale-version
// protocol.
type StaleOutcome int

const (
	// VersionOK: versions match; proceed.
	VersionOK StaleOutcome = iota
	// VersionStale: caller's metadata is behind; target must reject with
	// StaleConfig(wanted=local) so the caller reloads.
	VersionStale
	// VersionAhead: caller's metadata is ahead of the target's; the
	// target refreshes its own view, then retries locally (no error
	// returned to the caller).
	VersionAhead
)

// CompareShardVersion implements spec §4.7's stale-version protocol:
//
//	Epoch mismatch → StaleConfig(wanted=local); caller reloads.
//	Same epoch, caller's major < local → StaleConfig.
//	Same epoch, caller's version higher → target refreshes then retries locally.
//	Equal → proceed.
func CompareShardVersion(callerVersion, localVersion Version) StaleOutcome {
	if !callerVersion.SameEpoch(localVersion) {
		return VersionStale
	}
	switch callerVersion.Compare(localVersion) {
	case 0:
		return VersionOK
	case -1:
		return VersionStale
	default:
		return VersionAhead
	}
}

// CheckShardVersion is the dispatcher-facing form: returns a
// CodeStaleConfig error when the caller must reload and retry, nil
// (proceed) on VersionOK, and nil with refreshed=true on VersionAhead
// (the target should refresh its own cached version before continuing,
// per spec §4.7, but the operation need not be rejected).
func CheckShardVersion(ns string, callerVersion, localVersion Version) (refreshed bool, err error) {
	switch CompareShardVersion(callerVersion, localVersion) {
	case VersionOK:
		return false, nil
	case VersionAhead:
		return true, nil
	default:
		return false, sberrors.New(sberrors.CodeStaleConfig, "stale shard version for %s: wanted %s", ns, localVersion)
	}
}
