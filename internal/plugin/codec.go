// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plughost Contributors

package plugin

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/Masterminds/semver/v3"

	"github.com/plughost/plughost/internal/xmlstream"
)

// CacheFormatVersion is written into every cache file.
const CacheFormatVersion = "1.0.0"

// cacheFormatConstraint selects the cache files this version can read.
var cacheFormatConstraint = mustConstraint("^1")

func mustConstraint(c string) *semver.Constraints {
	cons, err := semver.NewConstraint(c)
	if err != nil {
		panic(err)
	}
	return cons
}

// Element and attribute names of the cache format.
const (
	elemCache    = "cache"
	elemBundle   = "bundle"
	elemPlugin   = "plugin"
	elemProperty = "property"

	attrVersion      = "version"
	attrPath         = "path"
	attrBundlePath   = "bundle_path"
	attrMTime        = "mtime"
	attrSize         = "size"
	attrUsable       = "usable"
	attrAPI          = "api"
	attrAPIVersion   = "api_version"
	attrName         = "name"
	attrIndex        = "index"
	attrMajorVersion = "major_version"
	attrMinorVersion = "minor_version"
	attrValue        = "value"
)

// ReadCache replaces the cache contents with the roster read from r.
// Binaries are built from their entries and stat-checked, never loaded;
// call ScanPluginFiles afterwards to pick up changes. Malformed entries are
// logged and dropped. An XML syntax error, such as a file cut short, ends
// the read: the bundle still open is dropped and the bundles completed
// before it are kept. If r cannot be read to the end, the cache is left as
// it was and a STREAM_ERROR is returned.
func (c *Cache) ReadCache(ctx context.Context, r io.Reader) error {
	ctx, span := tracer.Start(ctx, "plugin.ReadCache")
	defer span.End()

	cr := &cacheReader{
		ctx:        ctx,
		cache:      c,
		compatible: true,
		seen:       make(map[string]struct{}),
	}
	if err := xmlstream.Parse(r, cr); err != nil {
		var syntaxErr *xml.SyntaxError
		if !errors.As(err, &syntaxErr) {
			return ErrStream("read", err)
		}
		cr.drop(elemCache, fmt.Sprintf("xml syntax error on line %d: %s", syntaxErr.Line, syntaxErr.Msg))
	}
	cr.abandonBundle("unterminated bundle")

	binaries := cr.binaries
	if !cr.compatible {
		c.logger.WarnContext(ctx, "ignoring plugin cache written in an incompatible format",
			"version", cr.version, "supported", cacheFormatConstraint.String())
		binaries = nil
	}

	c.setBinaries(binaries)
	c.knownBinFiles = make(map[string]struct{})

	c.logger.DebugContext(ctx, "read plugin cache",
		"binaries", len(c.binaries),
		"plugins", len(c.plugins),
		"dropped", cr.dropped)
	return nil
}

// pendingBundle collects a bundle element until it closes.
type pendingBundle struct {
	path       string
	bundlePath string
	modTime    int64
	size       int64
	usable     bool
	plugins    []*Plugin
}

// cacheReader is the parse state of one ReadCache call.
type cacheReader struct {
	ctx        context.Context
	cache      *Cache
	version    string
	compatible bool

	bundle    *pendingBundle
	badBundle bool // inside a bundle being dropped
	plugin    *Plugin
	badPlugin bool // inside a plugin being dropped
	binaries  []*Binary
	seen      map[string]struct{}
	dropped   int
}

func (cr *cacheReader) StartElement(name string, attrs map[string]string) {
	switch name {
	case elemCache:
		cr.startCache(attrs)
	case elemBundle:
		// A bundle opening inside another one means the outer never closed.
		cr.abandonBundle("bundle nested in bundle")
		cr.startBundle(attrs)
	case elemPlugin:
		cr.startPlugin(attrs)
	case elemProperty:
		cr.addProperty(attrs)
	}
}

func (cr *cacheReader) CharData(_ []byte) {}

func (cr *cacheReader) EndElement(name string) {
	switch name {
	case elemBundle:
		cr.endBundle()
	case elemPlugin:
		cr.endPlugin()
	}
}

func (cr *cacheReader) startCache(attrs map[string]string) {
	v, ok := attrs[attrVersion]
	if !ok {
		return
	}
	cr.version = v
	ver, err := semver.NewVersion(v)
	cr.compatible = err == nil && cacheFormatConstraint.Check(ver)
}

func (cr *cacheReader) startBundle(attrs map[string]string) {
	cr.badBundle = false
	path := attrs[attrPath]
	if path == "" {
		cr.drop(elemBundle, "missing path")
		cr.badBundle = true
		return
	}
	mtime, err := strconv.ParseInt(attrs[attrMTime], 10, 64)
	if err != nil {
		cr.drop(elemBundle, "invalid mtime")
		cr.badBundle = true
		return
	}
	size, err := strconv.ParseInt(attrs[attrSize], 10, 64)
	if err != nil {
		cr.drop(elemBundle, "invalid size")
		cr.badBundle = true
		return
	}
	usable := true
	if v, ok := attrs[attrUsable]; ok {
		if usable, err = strconv.ParseBool(v); err != nil {
			cr.drop(elemBundle, "invalid usable flag")
			cr.badBundle = true
			return
		}
	}
	cr.bundle = &pendingBundle{
		path:       path,
		bundlePath: attrs[attrBundlePath],
		modTime:    mtime,
		size:       size,
		usable:     usable,
	}
}

func (cr *cacheReader) endBundle() {
	defer cr.resetBundle()
	if cr.bundle == nil {
		if !cr.badBundle {
			cr.drop(elemBundle, "end without start")
		}
		return
	}
	pb := cr.bundle
	id := fileIdentity(pb.path)
	if _, dup := cr.seen[id]; dup {
		cr.drop(elemBundle, "duplicate binary "+pb.path)
		return
	}
	cr.seen[id] = struct{}{}

	b := newCachedBinary(cr.cache.loader, pb.path, pb.bundlePath, pb.modTime, pb.size, pb.usable)
	for _, p := range pb.plugins {
		b.AddPlugin(p)
	}
	cr.binaries = append(cr.binaries, b)
}

// abandonBundle drops a bundle that is still open.
func (cr *cacheReader) abandonBundle(reason string) {
	if cr.bundle != nil {
		cr.drop(elemBundle, reason)
	}
	cr.resetBundle()
}

func (cr *cacheReader) resetBundle() {
	cr.bundle = nil
	cr.badBundle = false
	cr.plugin = nil
	cr.badPlugin = false
}

func (cr *cacheReader) startPlugin(attrs map[string]string) {
	cr.plugin = nil
	cr.badPlugin = true
	if cr.badBundle {
		// Children of a dropped bundle go with it.
		return
	}
	if cr.bundle == nil {
		cr.drop(elemPlugin, "plugin outside bundle")
		return
	}

	ints := make(map[string]int, 3)
	for _, key := range []string{attrAPIVersion, attrMajorVersion, attrMinorVersion} {
		v, err := strconv.Atoi(attrs[key])
		if err != nil {
			cr.drop(elemPlugin, "invalid "+key)
			return
		}
		ints[key] = v
	}
	if attrs[attrAPI] == "" || attrs[attrName] == "" {
		cr.drop(elemPlugin, "missing api or name")
		return
	}
	index := len(cr.bundle.plugins)
	if v, ok := attrs[attrIndex]; ok {
		i, err := strconv.Atoi(v)
		if err != nil || i < 0 {
			cr.drop(elemPlugin, "invalid index")
			return
		}
		index = i
	}

	cr.plugin = NewPlugin(index, Descriptor{
		API:          attrs[attrAPI],
		APIVersion:   ints[attrAPIVersion],
		Identifier:   attrs[attrName],
		VersionMajor: ints[attrMajorVersion],
		VersionMinor: ints[attrMinorVersion],
	}, nil)
	cr.badPlugin = false
}

func (cr *cacheReader) endPlugin() {
	if cr.plugin != nil && cr.bundle != nil {
		cr.bundle.plugins = append(cr.bundle.plugins, cr.plugin)
	}
	cr.plugin = nil
	cr.badPlugin = false
}

func (cr *cacheReader) addProperty(attrs map[string]string) {
	if cr.plugin == nil {
		if !cr.badPlugin && !cr.badBundle {
			cr.drop(elemProperty, "property outside plugin")
		}
		return
	}
	key, ok := attrs[attrName]
	if !ok || key == "" {
		cr.drop(elemProperty, "missing name")
		return
	}
	if cr.plugin.props == nil {
		cr.plugin.props = make(map[string]string)
	}
	cr.plugin.props[key] = attrs[attrValue]
}

func (cr *cacheReader) drop(element, reason string) {
	cr.dropped++
	CacheEntriesDropped.Inc()
	cr.cache.warn(cr.ctx, "dropping malformed plugin cache entry", ErrMalformedEntry(element, reason))
}

// WritePluginCache writes every known binary and its plugins to w, in the
// same order as Plugins.
func (c *Cache) WritePluginCache(ctx context.Context, w io.Writer) error {
	_, span := tracer.Start(ctx, "plugin.WritePluginCache")
	defer span.End()

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return ErrStream("write", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")

	if err := c.encodeCache(enc); err != nil {
		return ErrStream("write", err)
	}
	if err := enc.Flush(); err != nil {
		return ErrStream("write", err)
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return ErrStream("write", err)
	}

	c.logger.DebugContext(ctx, "wrote plugin cache",
		slog.Int("binaries", len(c.binaries)),
		slog.Int("plugins", len(c.plugins)))
	return nil
}

func (c *Cache) encodeCache(enc *xml.Encoder) error {
	root := startElement(elemCache, attrVersion, CacheFormatVersion)
	if err := enc.EncodeToken(root); err != nil {
		return err
	}
	for _, b := range c.binaries {
		bundle := startElement(elemBundle,
			attrPath, b.filePath,
			attrBundlePath, b.bundlePath,
			attrMTime, strconv.FormatInt(b.modTime, 10),
			attrSize, strconv.FormatInt(b.size, 10),
			attrUsable, strconv.FormatBool(b.usable),
		)
		if err := enc.EncodeToken(bundle); err != nil {
			return err
		}
		for _, p := range b.plugins {
			if err := encodePlugin(enc, p); err != nil {
				return err
			}
		}
		if err := enc.EncodeToken(bundle.End()); err != nil {
			return err
		}
	}
	return enc.EncodeToken(root.End())
}

func encodePlugin(enc *xml.Encoder, p *Plugin) error {
	el := startElement(elemPlugin,
		attrName, p.desc.Identifier,
		attrIndex, strconv.Itoa(p.index),
		attrAPI, p.desc.API,
		attrAPIVersion, strconv.Itoa(p.desc.APIVersion),
		attrMajorVersion, strconv.Itoa(p.desc.VersionMajor),
		attrMinorVersion, strconv.Itoa(p.desc.VersionMinor),
	)
	if err := enc.EncodeToken(el); err != nil {
		return err
	}
	for _, key := range p.propertyKeys() {
		prop := startElement(elemProperty, attrName, key, attrValue, p.props[key])
		if err := enc.EncodeToken(prop); err != nil {
			return err
		}
		if err := enc.EncodeToken(prop.End()); err != nil {
			return err
		}
	}
	return enc.EncodeToken(el.End())
}

// startElement builds a start element from alternating attribute names and values.
func startElement(name string, kv ...string) xml.StartElement {
	el := xml.StartElement{Name: xml.Name{Local: name}}
	for i := 0; i+1 < len(kv); i += 2 {
		el.Attr = append(el.Attr, xml.Attr{Name: xml.Name{Local: kv[i]}, Value: kv[i+1]})
	}
	return el
}
