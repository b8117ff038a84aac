// Package handlers implements the clipper HTTP API.
//
// Upload and clip requests only create records and submit jobs; the work
// happens asynchronously in the jobs dispatcher and clients poll the status
// endpoints. Routes registers every endpoint on a gorilla/mux router:
//
//	POST /api/upload                 multipart field "video"
//	GET  /api/status/{id}            asset status and proxy URL
//	POST /api/assets/{id}/clips      create clips from in/out points
//	GET  /api/assets/{id}/clips      list an asset's clips
//	GET  /api/clips/{id}             clip status, clip and poster URLs
//	GET  /media/{ref}                stored media files
//	GET  /healthz, /livez, /readyz   probes
//	GET  /version                    build information
package handlers
