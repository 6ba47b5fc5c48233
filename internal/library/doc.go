// Package library holds the sheet music folder policy and folder operations.
//
// Each folder slug maps to the file formats it accepts. Score folders also
// take NWC notation files and part rehearsal videos. Default folders are
// ensured before any listing, so a fresh database shows the usual six.
package library
