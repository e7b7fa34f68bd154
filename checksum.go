package main

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// verifyAssetDigest checks a downloaded asset against the "<algorithm>:<hex>" digest the release
// host published for it. Assets without a digest are accepted as-is.
func verifyAssetDigest(logger *logrus.Entry, assetPath string, digest string) *deployError {
	if digest == "" {
		return nil
	}

	algorithm, expected, found := strings.Cut(digest, ":")
	if !found {
		return newError(errorWhileComputingChecksum, fmt.Sprintf("digest %q for %s is not of the form <algorithm>:<hex>", digest, assetPath))
	}

	computedChecksum, err := computeChecksum(assetPath, strings.ToLower(algorithm))
	if err != nil {
		return newError(errorWhileComputingChecksum, err.Error())
	}

	if !strings.EqualFold(computedChecksum, expected) {
		return newError(checksumDoesNotMatch, fmt.Sprintf("Expected %s checksum %s, but instead got %s for release asset at %s. Either the download was corrupted or someone has replaced the asset, and you should be very careful about proceeding.", algorithm, expected, computedChecksum, assetPath))
	}

	logger.Debugf("Release asset checksum verified for %s", assetPath)
	return nil
}

func computeChecksum(filePath string, algorithm string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher, err := getHasher(algorithm)
	if err != nil {
		return "", err
	}

	_, err = io.Copy(hasher, file)
	if err != nil {
		return "", err
	}

	return hasherToString(hasher), nil
}

// Return a hasher instance, the common interface used by all Golang hashing functions
func getHasher(algorithm string) (hash.Hash, error) {
	switch algorithm {
	case "sha256":
		return sha256.New(), nil
	case "sha512":
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("The checksum algorithm \"%s\" is not supported", algorithm)
	}
}

// Convert a hasher instance to the string value of that hasher
func hasherToString(hasher hash.Hash) string {
	return hex.EncodeToString(hasher.Sum(nil))
}
