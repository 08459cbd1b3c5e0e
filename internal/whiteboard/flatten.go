package whiteboard

import "strings"

// Object is the fabric-style canvas object as sent on the wire. The
// relay only reads the transform, id, type and src fields; everything
// else passes through untouched.
type Object map[string]any

func (o Object) str(key string) string {
	s, _ := o[key].(string)
	return s
}

func (o Object) num(key string, def float64) float64 {
	switch v := o[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

func (o Object) has(key string) bool {
	_, ok := o[key]
	return ok
}

// imageURLShaped reports whether src looks like an uploaded or remote
// image reference rather than inline data.
func imageURLShaped(src string) bool {
	return strings.HasPrefix(src, "/media/") ||
		strings.HasPrefix(src, "http://") ||
		strings.HasPrefix(src, "https://")
}

// imageSource extracts the image reference from a child object using
// the detection precedence: declared type first, URL-shaped src next,
// internal _imageUrl/_src fields last. Empty means not an image.
func imageSource(child Object) string {
	src := child.str("src")
	if child.str("type") == "image" {
		if src != "" {
			return src
		}
		if s := child.str("_imageUrl"); s != "" {
			return s
		}
		return child.str("_src")
	}
	if imageURLShaped(src) {
		return src
	}
	if s := child.str("_imageUrl"); imageURLShaped(s) {
		return s
	}
	if s := child.str("_src"); imageURLShaped(s) {
		return s
	}
	return ""
}

// Flatten rewrites obj for storage. A group containing an image child
// collapses to a standalone image object carrying the group's id and
// the composed transform: child position scaled by the group's scale
// and offset by the group's position, scales multiplied, rotations
// summed, opacity taken from the child when present. An object whose
// src is URL-shaped but whose declared type disagrees gets its type
// corrected to "image". Anything else is returned unchanged.
func Flatten(obj Object) Object {
	if obj.str("type") == "group" {
		if flat, ok := flattenGroup(obj); ok {
			return flat
		}
		return obj
	}
	if obj.str("type") != "image" && imageURLShaped(obj.str("src")) {
		obj["type"] = "image"
	}
	return obj
}

func flattenGroup(group Object) (Object, bool) {
	children, ok := group["objects"].([]any)
	if !ok {
		return nil, false
	}

	for _, raw := range children {
		childMap, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		child := Object(childMap)
		src := imageSource(child)
		if src == "" {
			continue
		}

		groupScaleX := group.num("scaleX", 1)
		groupScaleY := group.num("scaleY", 1)

		flat := Object{}
		for k, v := range child {
			flat[k] = v
		}
		flat["type"] = "image"
		flat["src"] = src
		if id := group.str("id"); id != "" {
			flat["id"] = id
		}
		flat["left"] = group.num("left", 0) + child.num("left", 0)*groupScaleX
		flat["top"] = group.num("top", 0) + child.num("top", 0)*groupScaleY
		flat["scaleX"] = child.num("scaleX", 1) * groupScaleX
		flat["scaleY"] = child.num("scaleY", 1) * groupScaleY
		flat["angle"] = child.num("angle", 0) + group.num("angle", 0)
		if !child.has("opacity") && group.has("opacity") {
			flat["opacity"] = group.num("opacity", 1)
		}
		return flat, true
	}
	return nil, false
}
