// Package logging sets up structured JSON logging for docvec.
// Logs go to a size-rotated file under ~/.docvec/logs/ so that progress
// output on stdout stays clean; --debug lowers the level to debug.
package logging
