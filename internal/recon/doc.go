// Package recon holds the reconciliation analysis: pure functions over
// transaction and account records already fetched from PayHOA. Nothing
// here touches the network, and all money math is exact integer cents.
package recon
