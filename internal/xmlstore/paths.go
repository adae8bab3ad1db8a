package xmlstore

import (
	"path/filepath"
	"strings"

	"github.com/dmellis/chatlog/internal/model"
)

// escapeAccount flattens an account path like "gabble/jabber/user" into
// a single directory component.
func escapeAccount(account string) string {
	return strings.ReplaceAll(account, "/", "_")
}

// unescapeAccount is the inverse used when reporting search hits. It is
// lossy for accounts whose name contains a literal underscore; hits are
// advisory so that is acceptable.
func unescapeAccount(dir string) string {
	return strings.ReplaceAll(dir, "_", "/")
}

// escapeID keeps middleware-generated conversation ids containing
// slashes from turning into nested directories.
func escapeID(id string) string {
	return strings.ReplaceAll(id, "/", "_")
}

// conversationDir returns the directory holding one conversation's day
// files.
func (s *Store) conversationDir(account, id string, room bool) string {
	if room {
		return filepath.Join(s.basedir, escapeAccount(account), chatroomsDir, escapeID(id))
	}
	return filepath.Join(s.basedir, escapeAccount(account), escapeID(id))
}

// filePath returns the day file for one conversation date.
func (s *Store) filePath(account, id string, room bool, date model.Date) string {
	return filepath.Join(s.conversationDir(account, id, room), date.Key()+logExt)
}
