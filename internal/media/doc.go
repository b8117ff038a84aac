// Package media generates poster thumbnails for clips.
//
// A poster is a single frame grabbed at the clip's in-point by FFmpeg,
// scaled to a quarter of the frame size and written as PNG.
package media
