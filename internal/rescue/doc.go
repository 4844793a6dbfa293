// Package rescue wires a complete recovery run: it locks the artifacts,
// opens the medium, creates or resumes a session in the map database, drives
// the staged recovery over it, and writes recovered data into the image.
package rescue
