package monitor

import (
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/bull/docsync/internal/indexer"
)

// Signal summarizes a folder listing. It changes whenever a document is added,
// removed, resized or touched, without reading any file contents.
func Signal(files []indexer.File) uint64 {
	d := xxhash.New()
	buf := make([]byte, 0, 128)
	for _, f := range files {
		buf = buf[:0]
		buf = append(buf, f.Name...)
		buf = append(buf, 0)
		buf = strconv.AppendInt(buf, f.Size, 10)
		buf = append(buf, 0)
		buf = strconv.AppendInt(buf, f.ModTime.UnixNano(), 10)
		buf = append(buf, '\n')
		_, _ = d.Write(buf)
	}
	return d.Sum64()
}
