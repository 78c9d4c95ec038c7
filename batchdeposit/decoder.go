package batchdeposit

// decodeBatch slices the request into records. The record count is given by the number of
// deposit data roots and every other sequence has to agree with it exactly.
func decodeBatch(req *BatchRequest) ([]DepositRecord, error) {
	if req == nil {
		return nil, newError(KindMalformedBatch, "empty request")
	}
	n := len(req.DepositDataRoots)
	if n == 0 {
		return nil, newError(KindMalformedBatch, "no deposit data roots")
	}
	if len(req.Pubkeys) != PubkeyLength*n {
		return nil, newError(KindMalformedBatch, "pubkeys length %d does not match %d records of %d bytes", len(req.Pubkeys), n, PubkeyLength)
	}
	if len(req.Signatures) != SignatureLength*n {
		return nil, newError(KindMalformedBatch, "signatures length %d does not match %d records of %d bytes", len(req.Signatures), n, SignatureLength)
	}
	if req.Amounts != nil && len(req.Amounts) != n {
		return nil, newError(KindMalformedBatch, "%d amounts supplied for %d records", len(req.Amounts), n)
	}

	records := make([]DepositRecord, n)
	for i := range records {
		r := &records[i]
		r.Index = i
		copy(r.Pubkey[:], req.Pubkeys[i*PubkeyLength:(i+1)*PubkeyLength])
		copy(r.Signature[:], req.Signatures[i*SignatureLength:(i+1)*SignatureLength])
		r.DepositDataRoot = req.DepositDataRoots[i]
		if req.Amounts != nil {
			r.Amount = req.Amounts[i]
		}
	}
	return records, nil
}
