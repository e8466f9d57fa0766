// Command datamux validates, inspects and samples data mixing configurations.
//
//	datamux validate -c data.yaml
//	datamux inspect  -c data.yaml
//	datamux sample   -c data.yaml -n 1000 --workers 2 --stats-db runs.db --metrics-addr :9090
//	datamux schema
//
// validate resolves the whole tree, which opens every manifest once to count its
// records. inspect prints the resolved stream tree with the share of the output each
// stream is expected to contribute. sample draws entries with several workers, each a
// separate consumer of the same stream, and prints how the draws split by origin and
// by tag. schema prints the JSON schema every configuration document is checked
// against.
package main
