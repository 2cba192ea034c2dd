// Package runtime recovers panics in engine goroutines and reports them.
//
// Every goroutine the escrow engine starts (future continuations, payout
// workers, bridged-offer settlement) runs through SafeGoWithContextAndComponent,
// which logs the panic, records it on the active span, increments
// panic_recovered_total and forwards it to the configured ErrorReporter.
package runtime
