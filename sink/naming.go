package sink

import (
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/logship/s3sink/models"
)

// defaultTimeLayout renders year-month-day-hour-minute; the environment and
// host identifier are appended outside the layout so names like "prod-15"
// cannot be mangled by time formatting.
const defaultTimeLayout = "2006-01-02T15-04"

// namer derives object keys for new epochs. It is immutable after
// construction: the same timestamp always yields the same key.
type namer struct {
	folder string
	layout string
	suffix string
}

func newNamer(cfg models.SinkConfig) namer {
	n := namer{folder: normalizeFolder(cfg.Folder)}

	if cfg.NameFormat != "" {
		n.layout = cfg.NameFormat
		if cfg.Compress {
			n.suffix = ".gz"
		}
		return n
	}

	ext := ".log"
	if cfg.SaveLogsInJSON {
		ext = ".json"
	}
	if cfg.Compress {
		ext += ".gz"
	}

	n.layout = defaultTimeLayout
	n.suffix = "_" + cfg.Environment + "_" + hostIdentifier() + ext
	return n
}

// Key renders the object key for an epoch created at createdAt. Pure: no
// side effects, idempotent for a given timestamp.
func (n namer) Key(createdAt time.Time) string {
	return n.folder + createdAt.UTC().Format(n.layout) + n.suffix
}

// normalizeFolder guarantees exactly one trailing separator, or none when
// the folder is empty.
func normalizeFolder(folder string) string {
	folder = strings.TrimRight(folder, "/")
	if folder == "" {
		return ""
	}
	return folder + "/"
}

func hostIdentifier() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return uuid.NewString()[:8]
}
