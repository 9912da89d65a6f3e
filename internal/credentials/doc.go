// Package credentials persists credential records (OAuth2 tokens, API keys)
// as JSON files in the user's configuration directory.
//
// One file is kept per credential kind; its name is the kind prefixed with a
// dot (".jwt", ".apikey"). Files are written with 0600 permissions inside a
// 0700 directory, through a temporary file and a rename so that concurrent
// readers never observe a partial record. Concurrent processes are not
// coordinated: the last writer wins.
//
// A Store created without a directory keeps records in memory only.
package credentials
