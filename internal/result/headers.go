package result

import (
	"mime"
	"net/http"
	"net/url"
	"path"
)

// downloadHeaders builds the headers sent to the caller for a result.
//
// For range requests only the upstream range headers are forwarded. Otherwise
// the filename comes from the upstream Content-Disposition or the last URL
// path segment, and the content type and extension are inferred from each
// other when one of them is missing.
func downloadHeaders(rawURL, rangeHeader string, upstream http.Header) http.Header {
	out := make(http.Header)

	if rangeHeader != "" {
		for _, h := range []string{"Content-Type", "Content-Range", "Content-Length", "Accept-Ranges"} {
			if v := upstream.Get(h); v != "" {
				out.Set(h, v)
			}
		}
		return out
	}

	filename := urlFilename(rawURL)
	if cd := upstream.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil && params["filename"] != "" {
			filename = params["filename"]
		}
	}

	contentType := upstream.Get("Content-Type")
	ext := path.Ext(filename)
	switch {
	case ext != "" && contentType == "":
		contentType = mime.TypeByExtension(ext)
	case ext == "" && contentType != "":
		if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
			filename += exts[0]
		}
	}

	if contentType != "" {
		out.Set("Content-Type", contentType)
	}
	if v := upstream.Get("Content-Length"); v != "" {
		out.Set("Content-Length", v)
	}
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": filename})
	if disposition == "" {
		disposition = "attachment; filename=result"
	}
	out.Set("Content-Disposition", disposition)
	out.Set("Access-Control-Expose-Headers", "Content-Disposition")
	return out
}

func urlFilename(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		if base := path.Base(u.Path); base != "." && base != "/" {
			return base
		}
	}
	return "result"
}
