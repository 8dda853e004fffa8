// Package wire decodes the chat server's JSON payloads into chat types.
//
// The server is loose about shapes: ids arrive as "_id" or "id", user
// references may be a bare id string or a populated user object, media is
// carried as separate "image" and "video" URL fields, and timestamps may be
// RFC 3339 strings or Unix milliseconds. Decoding goes through gjson so each
// of these variants is read without intermediate structs.
package wire
