package transtore

import (
	"fmt"
	"net/http"
	"path"
	"regexp"
	"sort"
	"strings"
)

var imageExts = map[string]string{
	".png":  ".png",
	".jpg":  ".jpg",
	".jpeg": ".jpg",
	".gif":  ".gif",
	".webp": ".webp",
}

var mdImageRe = regexp.MustCompile(`!\[([^\]]*)\]\(\s*([^)\s]+)[^)]*\)`)

// normalizeImages assigns each image a fig_N name, numbering by sorted
// original name so the layout is deterministic. Known extensions are kept
// (jpeg collapses to jpg); anything else is sniffed from the bytes. The
// second return value maps original basenames to their new names.
func normalizeImages(images map[string][]byte) (map[string][]byte, map[string]string) {
	if len(images) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(images))
	for name := range images {
		names = append(names, name)
	}
	sort.Strings(names)

	files := make(map[string][]byte, len(images))
	renames := make(map[string]string, len(images))
	for i, name := range names {
		data := images[name]
		ext, ok := imageExts[strings.ToLower(path.Ext(name))]
		if !ok {
			ext = sniffImageExt(data)
		}
		newName := fmt.Sprintf("fig_%d%s", i+1, ext)
		files[newName] = data
		renames[path.Base(name)] = newName
	}
	return files, renames
}

func sniffImageExt(data []byte) string {
	switch http.DetectContentType(data) {
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	}
	return ".png"
}

// rewriteImageRefs points Markdown image references at the stored
// images/fig_N files. References to unknown images are left alone.
func rewriteImageRefs(md string, renames map[string]string) string {
	if len(renames) == 0 {
		return md
	}
	return mdImageRe.ReplaceAllStringFunc(md, func(ref string) string {
		m := mdImageRe.FindStringSubmatch(ref)
		newName, ok := renames[path.Base(m[2])]
		if !ok {
			return ref
		}
		return fmt.Sprintf("![%s](images/%s)", m[1], newName)
	})
}
