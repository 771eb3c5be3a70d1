package bot

const helpText = `VizBot — NIFTY options paper trading

Getting started:
  start                         List NIFTY expiries (prompts for Upstox auth if needed)
  auth                          Show the Upstox authorization link
  <code>                        Paste the auth code from the redirect URL to finish login
  exp:<YYYY-MM-DD>              Analyze the option chain for an expiry (PCR, opportunities)

Trading:
  /paper <CE|PE> <strike> <BUY|SELL> <lots> <price>
                                Open a paper position (SELL blocks 15% of strike notional,
                                BUY blocks the premium)
  /close <CE|PE> <strike> [price]
                                Close a position by strike and type. When several match,
                                the oldest is closed first. Omit the price to close at the
                                current market premium.
  /close <position-id> [price]  Close a specific position by its id
                                Losses are floored at your remaining balance; the
                                virtual account never goes below zero.
  /portfolio                    Show funds, open positions, and trade stats
  /reset                        Wipe the portfolio and start over with fresh funds

Type any command exactly as shown. I trade NIFTY index options only.`
