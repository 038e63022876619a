package release

import "path"

const (
	// ReleasePrefix is the top-level storage prefix for all published objects.
	ReleasePrefix = "release"
	// ArtifactExtension is the file extension of packed artifacts.
	ArtifactExtension = ".crx"
	// ArtifactContentType is the content type used when uploading packed artifacts.
	ArtifactContentType = "application/x-chrome-extension"
	// PatchContentType is the content type used when uploading patches.
	PatchContentType = "application/octet-stream"

	artifactFilePrefix = "extension_"
	patchesSegment     = "patches"
)

// ArtifactFileName returns the version-derived file name of an artifact, e.g. extension_1_0_2.crx.
func ArtifactFileName(v Version) string {
	return artifactFilePrefix + v.FileTag() + ArtifactExtension
}

// ArtifactKey returns the storage key of the artifact for id at version v.
func ArtifactKey(id Identity, v Version) string {
	return path.Join(ReleasePrefix, id.String(), ArtifactFileName(v))
}

// PatchKey returns the storage key of a patch in the namespace of contentHash.
func PatchKey(id Identity, contentHash ContentHash, patchName string) string {
	return path.Join(ReleasePrefix, id.String(), patchesSegment, contentHash.String(), patchName)
}
