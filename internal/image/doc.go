// Package image writes recovered sector data into the output ISO file.
//
// The writer pre-extends the output to the full medium length so unrecovered
// sectors read back as zeros, then fills in real data at sector offsets as
// the recovery stages confirm it.
package image
