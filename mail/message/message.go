// Package message builds multipart/mixed MIME messages: one text part read
// from the body source followed by one base64 part per attachment.
package message

import (
	"bytes"
	"context"
	"encoding/base64"
	"mime"
	"mime/quotedprintable"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/docker/go-units"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/pure-golang/smtpmail/mail"
	"github.com/pure-golang/smtpmail/source"
)

const (
	crlf = "\r\n"

	// base64 lines are wrapped at 76 characters (RFC 2045 §6.8).
	base64LineLen = 76

	boundaryAttempts = 10

	// maxLineLen is the RFC 5322 line limit, excluding CRLF.
	maxLineLen = 998

	// subject encoded-words carry at most this many raw bytes each.
	subjectChunk = 45

	defaultContentType = "application/octet-stream"
)

// compressionSuffixes are the encodings a typed attachment may be wrapped
// in. Short archive names map to their long form.
var compressionSuffixes = map[string]string{
	".gz":   "",
	".Z":    "",
	".bz2":  "",
	".xz":   "",
	".br":   "",
	".tgz":  ".tar",
	".taz":  ".tar",
	".tz":   ".tar",
	".tbz2": ".tar",
	".txz":  ".tar",
}

// Options tune Compose. A nil *Options uses the local filesystem, the
// current time, random boundaries and no size limit.
type Options struct {
	Opener   source.Opener
	Now      func() time.Time
	MaxSize  int64         // bytes; 0 disables the check
	Boundary func() string // boundary generator
}

func (o *Options) withDefaults() Options {
	var out Options
	if o != nil {
		out = *o
	}
	if out.Opener == nil {
		out.Opener = source.Files{}
	}
	if out.Now == nil {
		out.Now = time.Now
	}
	if out.Boundary == nil {
		out.Boundary = NewBoundary
	}
	return out
}

// NewBoundary returns a random boundary token. "=_" cannot occur in base64
// output, so attachment payloads never collide with it.
func NewBoundary() string {
	return "=_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// part is a body part: its header block and its already encoded content.
type part struct {
	header  string
	content []byte
}

// Compose reads the body and attachments of email and returns the full
// message. Nothing is returned unless every source could be read.
func Compose(ctx context.Context, email mail.Email, opts *Options) ([]byte, error) {
	o := opts.withDefaults()

	if err := email.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid email")
	}

	refs := append([]string{email.Body}, email.Attachments...)
	for _, ref := range refs {
		if err := source.Check(ctx, o.Opener, ref); err != nil {
			return nil, &IOError{Path: ref, Err: err}
		}
	}

	parts := make([]part, 0, len(email.Attachments)+1)

	text, err := textPart(ctx, o.Opener, email.Body)
	if err != nil {
		return nil, err
	}
	parts = append(parts, text)

	for _, ref := range email.Attachments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := attachmentPart(ctx, o.Opener, ref)
		if err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}

	boundary, err := pickBoundary(o.Boundary, parts)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	writeHeaders(&buf, email, boundary, o.Now())
	for _, p := range parts {
		buf.WriteString("--" + boundary + crlf)
		buf.WriteString(p.header)
		buf.WriteString(crlf)
		buf.Write(p.content)
		// The CRLF before a delimiter belongs to the delimiter.
		buf.WriteString(crlf)
	}
	buf.WriteString("--" + boundary + "--" + crlf)

	if o.MaxSize > 0 && int64(buf.Len()) > o.MaxSize {
		return nil, errors.Wrapf(ErrMessageTooLarge, "%s exceeds the %s limit",
			units.HumanSize(float64(buf.Len())), units.HumanSize(float64(o.MaxSize)))
	}

	return buf.Bytes(), nil
}

func writeHeaders(buf *bytes.Buffer, email mail.Email, boundary string, now time.Time) {
	header := func(name, value string) {
		buf.WriteString(name + ": " + value + crlf)
	}

	header("From", email.From)
	header("To", strings.Join(email.To, ","))
	header("Subject", EncodeSubject(email.Subject))
	header("Date", now.Format(time.RFC1123Z))
	header("Message-ID", messageID(email.From))
	header("MIME-Version", "1.0")
	header("Content-Type", mime.FormatMediaType("multipart/mixed", map[string]string{"boundary": boundary}))
	buf.WriteString(crlf)
}

// EncodeSubject encodes non-ASCII subjects as RFC 2047 encoded-words folded
// one word per line. ASCII subjects that fit on a header line are returned
// unchanged.
func EncodeSubject(subject string) string {
	enc := mime.BEncoding.Encode("utf-8", subject)
	if enc == subject && len("Subject: ")+len(subject) > maxLineLen {
		enc = encodeWords(subject)
	}
	return strings.ReplaceAll(enc, "?= =?", "?="+crlf+" =?")
}

// encodeWords splits s on rune boundaries into B encoded-words.
func encodeWords(s string) string {
	var words []string
	for len(s) > 0 {
		n := min(len(s), subjectChunk)
		for n > 1 && n < len(s) && !utf8.RuneStart(s[n]) {
			n--
		}
		words = append(words, "=?utf-8?b?"+base64.StdEncoding.EncodeToString([]byte(s[:n]))+"?=")
		s = s[n:]
	}
	return strings.Join(words, " ")
}

func messageID(from string) string {
	domain := "localhost"
	if at := strings.LastIndexByte(from, '@'); at >= 0 && at < len(from)-1 {
		domain = from[at+1:]
	}
	return "<" + uuid.NewString() + "@" + domain + ">"
}

func textPart(ctx context.Context, o source.Opener, ref string) (part, error) {
	data, err := source.ReadAll(ctx, o, ref)
	if err != nil {
		return part{}, &IOError{Path: ref, Err: err}
	}

	if !utf8.Valid(data) {
		return part{}, &IOError{Path: ref, Err: errors.New("body is not valid UTF-8")}
	}
	content := normalizeLineEndings(data)
	cte := "7bit"
	switch {
	case hasLongLine(content):
		var buf bytes.Buffer
		w := quotedprintable.NewWriter(&buf)
		if _, err := w.Write(content); err != nil {
			return part{}, &IOError{Path: ref, Err: err}
		}
		if err := w.Close(); err != nil {
			return part{}, &IOError{Path: ref, Err: err}
		}
		cte, content = "quoted-printable", buf.Bytes()
	case !isASCII(content):
		cte = "8bit"
	}

	return part{
		header: "Content-Type: text/plain; charset=utf-8" + crlf +
			"Content-Transfer-Encoding: " + cte + crlf,
		content: content,
	}, nil
}

func attachmentPart(ctx context.Context, o source.Opener, ref string) (part, error) {
	data, err := source.ReadAll(ctx, o, ref)
	if err != nil {
		return part{}, &IOError{Path: ref, Err: err}
	}

	name := source.Name(ref)
	return part{
		header: "Content-Type: " + contentType(name) + crlf +
			"Content-Transfer-Encoding: base64" + crlf +
			"Content-Disposition: " + mime.FormatMediaType("attachment", map[string]string{"filename": name}) + crlf,
		content: encodeBase64(data),
	}, nil
}

// contentType returns application/octet-stream for plain files. A file
// wrapped in a known compression suffix takes the type of the inner
// extension, so report.pdf.gz is application/pdf. The name parameter is
// always set.
func contentType(name string) string {
	mediaType, params := defaultContentType, map[string]string{}

	ext := filepath.Ext(name)
	inner, ok := compressionSuffixes[ext]
	if !ok {
		inner, ok = compressionSuffixes[strings.ToLower(ext)]
	}
	if ok {
		if inner == "" {
			inner = filepath.Ext(strings.TrimSuffix(name, ext))
		}
		if ctype := mime.TypeByExtension(inner); inner != "" && ctype != "" {
			if mt, p, err := mime.ParseMediaType(ctype); err == nil {
				mediaType, params = mt, p
			}
		}
	}

	params["name"] = name
	if s := mime.FormatMediaType(mediaType, params); s != "" {
		return s
	}
	return defaultContentType
}

func encodeBase64(data []byte) []byte {
	enc := base64.StdEncoding.EncodeToString(data)
	out := make([]byte, 0, len(enc)+len(enc)/base64LineLen*2)
	for len(enc) > base64LineLen {
		out = append(out, enc[:base64LineLen]...)
		out = append(out, crlf...)
		enc = enc[base64LineLen:]
	}
	return append(out, enc...)
}

func pickBoundary(gen func() string, parts []part) (string, error) {
	for i := 0; i < boundaryAttempts; i++ {
		b := gen()
		if b != "" && !collides(b, parts) {
			return b, nil
		}
	}
	return "", ErrBoundaryCollision
}

func collides(boundary string, parts []part) bool {
	for _, p := range parts {
		if strings.Contains(p.header, boundary) || bytes.Contains(p.content, []byte(boundary)) {
			return true
		}
	}
	return false
}

// normalizeLineEndings converts LF, CR and CRLF line endings to CRLF.
func normalizeLineEndings(data []byte) []byte {
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	data = bytes.ReplaceAll(data, []byte("\r"), []byte("\n"))
	return bytes.ReplaceAll(data, []byte("\n"), []byte(crlf))
}

func hasLongLine(data []byte) bool {
	for len(data) > 0 {
		line, rest, _ := bytes.Cut(data, []byte(crlf))
		if len(line) > maxLineLen {
			return true
		}
		data = rest
	}
	return false
}

func isASCII(data []byte) bool {
	for _, b := range data {
		if b >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
