// Package validate type- and range-checks the primitive fields accepted from
// clients. Each function returns the validated value or a ValidationError
// describing what was wrong.
package validate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gridloop/core/apperr"

	"github.com/google/uuid"
)

// TrackTypes are the mimetypes a track may carry. Clip content uploads are
// checked against the owning track's type.
var TrackTypes = []string{
	"audio/aac",
	"audio/mpeg",
	"audio/ogg",
	"audio/webm",
	"audio/wave",
	"audio/wav",
	"audio/midi",
	"audio/x-midi",
}

// AvatarTypes are the accepted avatar image mimetypes.
var AvatarTypes = []string{"image/jpeg", "image/png"}

// AvatarMaxSize caps avatar uploads at 2GB.
const AvatarMaxSize = int64(2147483648)

var (
	letterPattern  = regexp.MustCompile(`[a-zA-Z]`)
	capitalPattern = regexp.MustCompile(`[A-Z]`)
	digitPattern   = regexp.MustCompile(`[1-9]`)
	specialPattern = regexp.MustCompile(`[^\w\s]`)
	spacePattern   = regexp.MustCompile(`\s`)
)

// ID validates that id is a well-formed UUID and returns it.
func ID(id string) (string, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", apperr.NewValidation("id must be valid uuid")
	}
	return id, nil
}

// Name validates a user-facing name (3 to 18 characters).
func Name(name string) (string, error) {
	if len(name) < 3 {
		return "", apperr.NewValidation("name must be at least 3 characters")
	}
	if len(name) > 18 {
		return "", apperr.NewValidation("name must be no more than 18 characters")
	}
	return name, nil
}

// Password validates a new password against the account rules.
func Password(password string) (string, error) {
	switch {
	case len(password) < 8:
		return "", apperr.NewValidation("password must be at least 8 characters")
	case len(letterPattern.FindAllString(password, -1)) < 2:
		return "", apperr.NewValidation("password must have at least two letters")
	case !capitalPattern.MatchString(password):
		return "", apperr.NewValidation("password must have at least one capital letter")
	case !digitPattern.MatchString(password):
		return "", apperr.NewValidation("password must have at least one number")
	case !specialPattern.MatchString(password):
		return "", apperr.NewValidation("password must have at least one special character")
	case spacePattern.MatchString(password):
		return "", apperr.NewValidation("password must not have any spaces")
	}
	return password, nil
}

// Tempo validates a tempo in whole BPM between 40 and 280.
func Tempo(tempo int) (int, error) {
	if tempo < 40 {
		return 0, apperr.NewValidation("tempo must be at least 40 bpm")
	}
	if tempo > 280 {
		return 0, apperr.NewValidation("tempo must be less than 280 bpm")
	}
	return tempo, nil
}

// TimeSignature validates a "N/D" time signature: both parts in [1,32] and
// the denominator a power of two.
func TimeSignature(ts string) (string, error) {
	if !strings.Contains(ts, "/") {
		return "", apperr.NewValidation("timeSignature must have a '/'")
	}
	parts := strings.SplitN(ts, "/", 2)
	upper, errUpper := strconv.Atoi(parts[0])
	lower, errLower := strconv.Atoi(parts[1])
	if errUpper != nil || errLower != nil {
		return "", apperr.NewValidation("timeSignature must have an upper and lower numbers")
	}
	switch {
	case lower < 1:
		return "", apperr.NewValidation("lower number must be greater than 1")
	case lower > 32:
		return "", apperr.NewValidation("lower number must be less than 32")
	case lower&(lower-1) != 0:
		return "", apperr.NewValidation("lower number must be a power of two")
	case upper < 1:
		return "", apperr.NewValidation("upper number must be greater than 1")
	case upper > 32:
		return "", apperr.NewValidation("upper number must be less than 32")
	}
	return ts, nil
}

// Message validates chat message content (1 to 150 characters).
func Message(content string) (string, error) {
	if len(content) < 1 {
		return "", apperr.NewValidation("message must be at least 1 character")
	}
	if len(content) > 150 {
		return "", apperr.NewValidation("message must be less than 150 characters")
	}
	return content, nil
}

// Settings validates a track settings bag. The contents are opaque; only the
// shape is checked.
func Settings(settings map[string]interface{}) (map[string]interface{}, error) {
	if settings == nil {
		return nil, apperr.NewValidation("settings must be an object")
	}
	return settings, nil
}

// Type validates a track mimetype against the supported set.
func Type(mimetype string) (string, error) {
	for _, t := range TrackTypes {
		if t == mimetype {
			return mimetype, nil
		}
	}
	return "", apperr.NewValidation(fmt.Sprintf("type must be one of %s", strings.Join(TrackTypes, ", ")))
}

// Avatar validates an avatar upload's mimetype and size.
func Avatar(mimetype string, size int64) error {
	ok := false
	for _, t := range AvatarTypes {
		if t == mimetype {
			ok = true
			break
		}
	}
	if !ok {
		return apperr.NewValidation("avatar must be jpeg or png")
	}
	if size > AvatarMaxSize {
		return apperr.NewValidation("avatar must be less than 2GB")
	}
	return nil
}
