// Command server runs the demo site standalone.
//
// Every content route answers plain requests with a full HTML layout and
// partial requests with a bare fragment, which is what the navigation
// engine consumes. Configuration comes from environment variables
// (HOST, PORT, LOG_LEVEL, LOG_DEV).
package main
