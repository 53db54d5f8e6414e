package manifest

import (
	"errors"

	"github.com/go-git/go-git/v5"
)

// GitHead returns the commit checked out in the repository containing dir.
// It returns an empty string when dir is not inside a git work tree or the
// repository has no commits yet.
func GitHead(dir string) (string, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	ref, err := repo.Head()
	if err != nil {
		// unborn branch
		return "", nil
	}
	return ref.Hash().String(), nil
}
